package oci

import "testing"

func TestNewConfigDefaultsToBlank(t *testing.T) {
	d, raw := NewConfig("", nil)
	if d.Digest != BlankConfigHash {
		t.Fatalf("expected blank config hash, got %s", d.Digest)
	}
	if string(raw) != "{}" {
		t.Fatalf("expected {} payload, got %s", raw)
	}
}

func TestNewManifestSchemaVersion(t *testing.T) {
	cfg, _ := NewConfig("", nil)
	m := NewManifest(cfg, nil, nil)
	if m.SchemaVersion != 2 {
		t.Fatalf("expected schemaVersion 2, got %d", m.SchemaVersion)
	}
	if m.Layers == nil {
		t.Fatal("expected non-nil empty layers slice")
	}
	if err := ValidateManifest(m); err != nil {
		t.Fatalf("expected valid manifest, got %v", err)
	}
}

func TestValidateManifestRejectsMissingConfig(t *testing.T) {
	m := Manifest{}
	m.SchemaVersion = 2
	if err := ValidateManifest(m); err == nil {
		t.Fatal("expected error for missing config digest")
	}
}

func TestNewLayerDefaultsMediaType(t *testing.T) {
	d := NewLayer([]byte("layer-data"), "", map[string]string{"org.example": "1"})
	if d.MediaType != MediaTypeImageLayerGzip {
		t.Fatalf("unexpected media type: %s", d.MediaType)
	}
	if d.Annotations["org.example"] != "1" {
		t.Fatal("expected annotation to survive")
	}
}

func TestAnnotationSetFromMap(t *testing.T) {
	raw := map[string]map[string]string{
		ManifestKey: {"org.opencontainers.image.title": "demo"},
		"file.txt":  {"custom": "value"},
	}
	a := FromMap(raw)
	if a.Manifest()["org.opencontainers.image.title"] != "demo" {
		t.Fatal("expected manifest annotation")
	}
	if a.File("file.txt")["custom"] != "value" {
		t.Fatal("expected file annotation")
	}
}

func TestIsManifestAndIsIndex(t *testing.T) {
	if !IsManifest(MediaTypeImageManifest) || !IsManifest(MediaTypeDockerManifest) {
		t.Fatal("expected both OCI and Docker manifest media types recognized")
	}
	if !IsIndex(MediaTypeImageIndex) || !IsIndex(MediaTypeDockerIndex) {
		t.Fatal("expected both OCI and Docker index media types recognized")
	}
	if IsManifest(MediaTypeImageIndex) {
		t.Fatal("index media type should not be a manifest")
	}
}
