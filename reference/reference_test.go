package reference

import "testing"

func TestParseFullReference(t *testing.T) {
	c, err := Parse("ghcr.io/example/widgets:v1.2.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Registry != "ghcr.io" || c.Namespace != "example" || c.Repository != "widgets" || c.Tag != "v1.2.3" {
		t.Fatalf("unexpected parse result: %+v", c)
	}
}

func TestParseDefaultsRegistryAndTag(t *testing.T) {
	c, err := Parse("library/alpine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Registry != "docker.io" {
		t.Fatalf("expected default registry, got %q", c.Registry)
	}
	if c.Tag != "latest" {
		t.Fatalf("expected default tag latest, got %q", c.Tag)
	}
}

func TestParseWithDigest(t *testing.T) {
	c, err := Parse("registry.example.com:5000/ns/app@sha256:" + sample64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Registry != "registry.example.com:5000" {
		t.Fatalf("unexpected registry: %q", c.Registry)
	}
	if c.Digest != "sha256:"+sample64 {
		t.Fatalf("unexpected digest: %q", c.Digest)
	}
	if c.Tag != "" {
		t.Fatalf("expected no tag when digest present, got %q", c.Tag)
	}
}

func TestParseRejectsEmptyRepository(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}

func TestManifestURLPrefersTag(t *testing.T) {
	c, err := Parse("ghcr.io/org/proj/repo:v1.2@sha256:" + sample64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.ManifestURL("https", "")
	want := "https://ghcr.io/v2/org/proj/repo/manifests/v1.2"
	if got != want {
		t.Fatalf("ManifestURL() = %q, want %q", got, want)
	}
}

func TestManifestURLFallsBackToDigestWhenNoTag(t *testing.T) {
	c, err := Parse("example.com/ns/app@sha256:" + sample64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.ManifestURL("https", "")
	want := "https://example.com/v2/ns/app/manifests/sha256:" + sample64
	if got != want {
		t.Fatalf("ManifestURL() = %q, want %q", got, want)
	}
}

func TestTagsURLWithLimit(t *testing.T) {
	c, err := Parse("example.com/ns/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.TagsURL("https", 50)
	want := "https://example.com/v2/ns/app/tags/list?n=50"
	if got != want {
		t.Fatalf("TagsURL() = %q, want %q", got, want)
	}
}

func TestStringRoundTrip(t *testing.T) {
	c, err := Parse("example.com/ns/app:v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.String() != "example.com/ns/app:v1" {
		t.Fatalf("unexpected String(): %q", c.String())
	}
}

func TestWithDigestClearsTag(t *testing.T) {
	c, err := Parse("example.com/ns/app:latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c = c.WithDigest("sha256:" + sample64)
	if c.Tag != "" {
		t.Fatalf("expected WithDigest to clear Tag, got %q", c.Tag)
	}
	got := c.ManifestURL("https", "")
	want := "https://example.com/v2/ns/app/manifests/sha256:" + sample64
	if got != want {
		t.Fatalf("ManifestURL() = %q, want %q", got, want)
	}
}

const sample64 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
