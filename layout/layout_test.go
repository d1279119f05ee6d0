package layout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	digest "github.com/opencontainers/go-digest"

	"github.com/bibin-skaria/orascore/auth"
	"github.com/bibin-skaria/orascore/oci"
	"github.com/bibin-skaria/orascore/reference"
	"github.com/bibin-skaria/orascore/registry"
)

func TestNewRejectsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(t, filepath.Join(dir, "existing"), "data"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected error for non-empty directory")
	}
}

func TestNewThenOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "layout")
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("expected fresh layout to validate: %v", err)
	}
	if _, err := Open(dir); err != nil {
		t.Fatalf("expected Open to succeed: %v", err)
	}
}

func TestWriteBlobAndTagManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "layout")
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	configDesc, configData := oci.NewConfig("", nil)
	if _, err := l.WriteBlob(configDesc.MediaType, configData, nil); err != nil {
		t.Fatal(err)
	}
	layerData := []byte("layer-bytes")
	layerDesc := oci.NewLayer(layerData, "", nil)
	if _, err := l.WriteBlob(layerDesc.MediaType, layerData, nil); err != nil {
		t.Fatal(err)
	}

	manifest := oci.NewManifest(configDesc, []oci.Descriptor{layerDesc}, nil)
	raw, manifestDesc, err := oci.MarshalManifest(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.WriteBlob(manifestDesc.MediaType, raw, nil); err != nil {
		t.Fatal(err)
	}

	if err := l.TagManifest("latest", manifestDesc); err != nil {
		t.Fatal(err)
	}
	got, err := l.ManifestForTag("latest")
	if err != nil {
		t.Fatal(err)
	}
	if got.Digest != manifestDesc.Digest {
		t.Fatalf("tagged digest mismatch: %s vs %s", got.Digest, manifestDesc.Digest)
	}

	ordered, err := l.GetOrderedBlobs("latest")
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 3 {
		t.Fatalf("expected layer+config+manifest, got %d", len(ordered))
	}
	if ordered[len(ordered)-1].Digest != manifestDesc.Digest {
		t.Fatal("expected manifest to be last in dependency order")
	}
}

// TestGetOrderedBlobsDedupsSharedLayer reproduces a multi-arch index
// whose two manifests (amd64, arm64) reference the same layer blob:
// the shared layer must be collected once, not once per manifest, and
// the overall order must be shared-layer, amd64 config, amd64
// manifest, arm64 config, arm64 manifest, index.
func TestGetOrderedBlobsDedupsSharedLayer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "layout")
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	sharedLayerData := []byte("shared-layer-bytes")
	sharedLayerDesc := oci.NewLayer(sharedLayerData, "", nil)
	if _, err := l.WriteBlob(sharedLayerDesc.MediaType, sharedLayerData, nil); err != nil {
		t.Fatal(err)
	}

	amd64ConfigDesc, amd64ConfigData := oci.NewConfig("", []byte(`{"arch":"amd64"}`))
	if _, err := l.WriteBlob(amd64ConfigDesc.MediaType, amd64ConfigData, nil); err != nil {
		t.Fatal(err)
	}
	amd64Manifest := oci.NewManifest(amd64ConfigDesc, []oci.Descriptor{sharedLayerDesc}, nil)
	amd64Raw, amd64Desc, err := oci.MarshalManifest(amd64Manifest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.WriteBlob(amd64Desc.MediaType, amd64Raw, nil); err != nil {
		t.Fatal(err)
	}

	arm64ConfigDesc, arm64ConfigData := oci.NewConfig("", []byte(`{"arch":"arm64"}`))
	if _, err := l.WriteBlob(arm64ConfigDesc.MediaType, arm64ConfigData, nil); err != nil {
		t.Fatal(err)
	}
	arm64Manifest := oci.NewManifest(arm64ConfigDesc, []oci.Descriptor{sharedLayerDesc}, nil)
	arm64Raw, arm64Desc, err := oci.MarshalManifest(arm64Manifest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.WriteBlob(arm64Desc.MediaType, arm64Raw, nil); err != nil {
		t.Fatal(err)
	}

	idx := oci.NewIndex([]oci.Descriptor{amd64Desc, arm64Desc})
	idxRaw, _, err := oci.MarshalIndex(idx)
	if err != nil {
		t.Fatal(err)
	}
	idxDesc, err := l.WriteBlob(oci.MediaTypeImageIndex, idxRaw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.TagManifest("multi-arch", idxDesc); err != nil {
		t.Fatal(err)
	}

	ordered, err := l.GetOrderedBlobs("multi-arch")
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 6 {
		t.Fatalf("expected 6 distinct uploads, got %d: %+v", len(ordered), ordered)
	}

	want := []digest.Digest{
		sharedLayerDesc.Digest, amd64ConfigDesc.Digest, amd64Desc.Digest,
		arm64ConfigDesc.Digest, arm64Desc.Digest, idxDesc.Digest,
	}
	for i, d := range ordered {
		if d.Digest != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, d.Digest, want[i])
		}
	}

	seenCount := map[string]int{}
	for _, d := range ordered {
		seenCount[d.Digest.String()]++
	}
	if seenCount[sharedLayerDesc.Digest.String()] != 1 {
		t.Fatalf("expected shared layer to appear exactly once, appeared %d times", seenCount[sharedLayerDesc.Digest.String()])
	}
}

func TestPushThenPullFromRegistry(t *testing.T) {
	reg := newMemLayoutRegistry()
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	store, err := auth.NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	client := registry.NewClient(store)
	client.Scheme = "http"

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := reference.Parse(u.Host + "/ns/app:v1")
	if err != nil {
		t.Fatal(err)
	}

	srcDir := filepath.Join(t.TempDir(), "src")
	src, err := New(srcDir)
	if err != nil {
		t.Fatal(err)
	}
	configDesc, configData := oci.NewConfig("", nil)
	if _, err := src.WriteBlob(configDesc.MediaType, configData, nil); err != nil {
		t.Fatal(err)
	}
	layerData := []byte("layer-bytes")
	layerDesc := oci.NewLayer(layerData, "", nil)
	if _, err := src.WriteBlob(layerDesc.MediaType, layerData, nil); err != nil {
		t.Fatal(err)
	}
	manifest := oci.NewManifest(configDesc, []oci.Descriptor{layerDesc}, nil)
	raw, manifestDesc, err := oci.MarshalManifest(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.WriteBlob(manifestDesc.MediaType, raw, nil); err != nil {
		t.Fatal(err)
	}
	if err := src.TagManifest("v1", manifestDesc); err != nil {
		t.Fatal(err)
	}

	if err := src.PushToRegistry(context.Background(), client, ref, "v1"); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	destDir := filepath.Join(t.TempDir(), "dest")
	dest, err := New(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := dest.PullFromRegistry(context.Background(), client, ref, "v1"); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	pulledDesc, err := dest.ManifestForTag("v1")
	if err != nil {
		t.Fatal(err)
	}
	pulledBlob, err := dest.ReadBlob(pulledDesc.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if string(pulledBlob) != string(raw) {
		t.Fatal("pulled manifest does not match pushed manifest")
	}
}

func writeFile(t *testing.T, path, contents string) error {
	t.Helper()
	return osWriteFile(path, contents)
}

// memLayoutRegistry is a minimal distribution API double shared by
// the push/pull round-trip test above.
type memLayoutRegistry struct {
	blobs     map[string][]byte
	manifests map[string][]byte
	mediaType map[string]string
}

func newMemLayoutRegistry() *memLayoutRegistry {
	return &memLayoutRegistry{blobs: map[string][]byte{}, manifests: map[string][]byte{}, mediaType: map[string]string{}}
}

func (m *memLayoutRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ns/app/blobs/uploads/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/v2/ns/app/blobs/uploads/session")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/v2/ns/app/blobs/uploads/session", func(w http.ResponseWriter, r *http.Request) {
		digest := r.URL.Query().Get("digest")
		body := readBody(r)
		m.blobs[digest] = body
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/ns/app/blobs/", func(w http.ResponseWriter, r *http.Request) {
		digest := r.URL.Path[len("/v2/ns/app/blobs/"):]
		data, ok := m.blobs[digest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/v2/ns/app/manifests/", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Path[len("/v2/ns/app/manifests/"):]
		switch r.Method {
		case http.MethodPut:
			body := readBody(r)
			m.manifests[ref] = body
			m.mediaType[ref] = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := m.manifests[ref]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", m.mediaType[ref])
			w.Header().Set("Docker-Content-Digest", ref)
			w.Write(data)
		}
	})
	return mux
}
