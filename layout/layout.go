// Package layout implements the OCI Image Layout Specification: the
// on-disk oci-layout/index.json/blobs tree, and push/pull operations
// that move content between that tree and a registry.Client,
// following oras-py's layout/layout.py.
package layout

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/orascore/content"
	"github.com/bibin-skaria/orascore/oci"
	"github.com/bibin-skaria/orascore/reference"
	"github.com/bibin-skaria/orascore/registry"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

var log = logrus.WithField("component", "layout")

// imageLayoutVersion is the pinned oci-layout file version, matching
// defaults.py's oci_layout_version_pin.
const imageLayoutVersion = "1.0.0"

// ociLayoutFile is the content of the top-level "oci-layout" marker file.
type ociLayoutFile struct {
	ImageLayoutVersion string `json:"imageLayoutVersion"`
}

// Layout is an OCI image layout rooted at Path: a directory
// containing oci-layout, index.json, and a blobs/<algo>/<hex> tree.
type Layout struct {
	Path string
}

// New prepares dir as a fresh image layout: it must not exist, or
// must exist and be empty, matching NewLayoutFromRegistry's
// precondition in the original implementation.
func New(dir string) (*Layout, error) {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, orerrors.Wrap(mkErr, orerrors.ProtocolError, "New", "creating %s", dir)
		}
	case err != nil:
		return nil, orerrors.Wrap(err, orerrors.ProtocolError, "New", "reading %s", dir)
	case len(entries) > 0:
		return nil, orerrors.New(orerrors.ProtocolError, "New", "%s already exists and is not empty", dir)
	}

	l := &Layout{Path: dir}
	if err := l.writeLayoutFile(); err != nil {
		return nil, err
	}
	if err := l.writeIndex(oci.NewIndex(nil)); err != nil {
		return nil, err
	}
	return l, nil
}

// Open loads an existing layout directory, validating its
// oci-layout file's version before returning.
func Open(dir string) (*Layout, error) {
	l := &Layout{Path: dir}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that dir contains a well-formed oci-layout file
// pinned to the supported version, and an index.json that parses.
func (l *Layout) Validate() error {
	raw, err := os.ReadFile(l.layoutFilePath())
	if err != nil {
		return orerrors.Wrap(err, orerrors.FileNotFound, "Validate", "%s", l.layoutFilePath())
	}
	var marker ociLayoutFile
	if err := json.Unmarshal(raw, &marker); err != nil {
		return orerrors.Wrap(err, orerrors.SchemaInvalid, "Validate", "parsing oci-layout")
	}
	if marker.ImageLayoutVersion != imageLayoutVersion {
		return orerrors.New(orerrors.VersionMismatch, "Validate", "unsupported imageLayoutVersion %q", marker.ImageLayoutVersion)
	}

	idx, err := l.readIndex()
	if err != nil {
		return err
	}
	return oci.ValidateIndex(idx)
}

func (l *Layout) layoutFilePath() string {
	return filepath.Join(l.Path, "oci-layout")
}

func (l *Layout) indexPath() string {
	return filepath.Join(l.Path, "index.json")
}

func (l *Layout) blobPath(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", orerrors.Wrap(err, orerrors.SchemaInvalid, "blobPath", "invalid digest %q", d)
	}
	return filepath.Join(l.Path, "blobs", d.Algorithm().String(), d.Encoded()), nil
}

func (l *Layout) writeLayoutFile() error {
	raw, err := json.Marshal(ociLayoutFile{ImageLayoutVersion: imageLayoutVersion})
	if err != nil {
		return orerrors.Wrap(err, orerrors.SchemaInvalid, "writeLayoutFile", "encoding oci-layout")
	}
	if err := os.WriteFile(l.layoutFilePath(), raw, 0o644); err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "writeLayoutFile", "%s", l.layoutFilePath())
	}
	return nil
}

func (l *Layout) readIndex() (oci.Index, error) {
	raw, err := os.ReadFile(l.indexPath())
	if err != nil {
		return oci.Index{}, orerrors.Wrap(err, orerrors.FileNotFound, "readIndex", "%s", l.indexPath())
	}
	var idx oci.Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return oci.Index{}, orerrors.Wrap(err, orerrors.SchemaInvalid, "readIndex", "parsing index.json")
	}
	return idx, nil
}

func (l *Layout) writeIndex(idx oci.Index) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return orerrors.Wrap(err, orerrors.SchemaInvalid, "writeIndex", "encoding index.json")
	}
	if err := os.WriteFile(l.indexPath(), raw, 0o644); err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "writeIndex", "%s", l.indexPath())
	}
	return nil
}

// WriteBlob writes raw to its content-addressed location under
// blobs/, returning its descriptor. A blob already on disk with the
// matching digest is left untouched (dedup across layers and
// sub-manifests sharing the same content).
func (l *Layout) WriteBlob(mediaType string, raw []byte, annotations map[string]string) (oci.Descriptor, error) {
	desc := oci.NewDescriptor(mediaType, raw, annotations)
	path, err := l.blobPath(desc.Digest)
	if err != nil {
		return oci.Descriptor{}, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return desc, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oci.Descriptor{}, orerrors.Wrap(err, orerrors.ProtocolError, "WriteBlob", "%s", path)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return oci.Descriptor{}, orerrors.Wrap(err, orerrors.ProtocolError, "WriteBlob", "%s", path)
	}
	return desc, nil
}

// ReadBlob reads the blob addressed by digest from disk.
func (l *Layout) ReadBlob(d digest.Digest) ([]byte, error) {
	path, err := l.blobPath(d)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.FileNotFound, "ReadBlob", "%s", path)
	}
	if !content.Verify(d, raw) {
		return nil, orerrors.New(orerrors.SchemaInvalid, "ReadBlob", "blob at %s does not match digest %s", path, d)
	}
	return raw, nil
}

// TagManifest records desc in index.json under tag, replacing any
// existing entry for that tag. This is the final step of
// PullFromRegistry, matching layout.py's single annotated index
// entry per destination tag; PushToRegistry does not modify index.json.
func (l *Layout) TagManifest(tag string, desc oci.Descriptor) error {
	idx, err := l.readIndex()
	if err != nil {
		return err
	}
	if desc.Annotations == nil {
		desc.Annotations = map[string]string{}
	}
	desc.Annotations["org.opencontainers.image.ref.name"] = tag
	log.WithFields(logrus.Fields{"tag": tag, "digest": desc.Digest}).Debug("tagging manifest")

	filtered := idx.Manifests[:0]
	for _, m := range idx.Manifests {
		if m.Annotations["org.opencontainers.image.ref.name"] != tag {
			filtered = append(filtered, m)
		}
	}
	idx.Manifests = append(filtered, desc)
	return l.writeIndex(idx)
}

// ManifestForTag returns the descriptor tagged tag in index.json.
func (l *Layout) ManifestForTag(tag string) (oci.Descriptor, error) {
	idx, err := l.readIndex()
	if err != nil {
		return oci.Descriptor{}, err
	}
	for _, m := range idx.Manifests {
		if m.Annotations["org.opencontainers.image.ref.name"] == tag {
			return m, nil
		}
	}
	return oci.Descriptor{}, orerrors.New(orerrors.FileNotFound, "ManifestForTag", "no manifest tagged %q", tag)
}

// GetOrderedBlobs walks the manifest or index tagged tag and returns
// every referenced blob's descriptor in dependency order: for an
// image manifest, layers then config then the manifest itself; for
// an index, each sub-manifest's own ordering followed by the index.
// Push uses this ordering to upload dependencies before dependents.
func (l *Layout) GetOrderedBlobs(tag string) ([]oci.Descriptor, error) {
	root, err := l.ManifestForTag(tag)
	if err != nil {
		return nil, err
	}
	seen := map[digest.Digest]bool{}
	return l.orderedBlobsFor(root, seen)
}

// orderedBlobsFor appends desc and everything it depends on to the
// traversal, skipping any digest already recorded in seen so a layer
// shared by two sub-manifests (the common multi-arch case) is
// collected - and uploaded - exactly once, mirroring layout.py's
// _process_manifest guard.
func (l *Layout) orderedBlobsFor(desc oci.Descriptor, seen map[digest.Digest]bool) ([]oci.Descriptor, error) {
	raw, err := l.ReadBlob(desc.Digest)
	if err != nil {
		return nil, err
	}

	switch {
	case oci.IsIndex(desc.MediaType):
		var idx oci.Index
		if err := json.Unmarshal(raw, &idx); err != nil {
			return nil, orerrors.Wrap(err, orerrors.SchemaInvalid, "orderedBlobsFor", "decoding index %s", desc.Digest)
		}
		var out []oci.Descriptor
		for _, sub := range idx.Manifests {
			subBlobs, err := l.orderedBlobsFor(sub, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, subBlobs...)
		}
		return appendUnseen(out, seen, desc), nil

	case oci.IsManifest(desc.MediaType):
		var manifest oci.Manifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return nil, orerrors.Wrap(err, orerrors.SchemaInvalid, "orderedBlobsFor", "decoding manifest %s", desc.Digest)
		}
		var out []oci.Descriptor
		for _, layer := range manifest.Layers {
			out = appendUnseen(out, seen, layer)
		}
		out = appendUnseen(out, seen, manifest.Config)
		return appendUnseen(out, seen, desc), nil

	default:
		return nil, orerrors.New(orerrors.UnsupportedMediaType, "orderedBlobsFor", "unsupported mediaType %q", desc.MediaType)
	}
}

// appendUnseen appends desc to out and marks its digest seen, unless
// that digest has already been collected by an earlier branch of the
// traversal.
func appendUnseen(out []oci.Descriptor, seen map[digest.Digest]bool, desc oci.Descriptor) []oci.Descriptor {
	if seen[desc.Digest] {
		log.WithField("digest", desc.Digest).Debug("skipping already-collected blob")
		return out
	}
	seen[desc.Digest] = true
	return append(out, desc)
}

// PushToRegistry uploads every blob GetOrderedBlobs returns for tag,
// last by tag and everything else by digest, to ref's repository.
func (l *Layout) PushToRegistry(ctx context.Context, client *registry.Client, ref reference.Container, tag string) error {
	blobs, err := l.GetOrderedBlobs(tag)
	if err != nil {
		return err
	}

	root, err := l.ManifestForTag(tag)
	if err != nil {
		return err
	}

	for _, desc := range blobs {
		raw, err := l.ReadBlob(desc.Digest)
		if err != nil {
			return err
		}

		isRoot := desc.Digest == root.Digest
		var destRef reference.Container
		if isRoot {
			destRef = ref.WithTag(tag)
		} else {
			destRef = ref.WithDigest(desc.Digest.String())
		}

		if oci.IsManifest(desc.MediaType) || oci.IsIndex(desc.MediaType) {
			if err := client.UploadManifest(ctx, destRef, desc.MediaType, raw); err != nil {
				return err
			}
			continue
		}
		if _, err := client.UploadBlobMonolithic(ctx, ref, raw); err != nil {
			return err
		}
	}
	return nil
}

// PullFromRegistry fetches ref's manifest (recursing into any index)
// and every blob it references, writing them into the layout and
// tagging the root manifest as tag.
func (l *Layout) PullFromRegistry(ctx context.Context, client *registry.Client, ref reference.Container, tag string) error {
	raw, desc, err := client.FetchManifest(ctx, ref)
	if err != nil {
		return err
	}
	rootDesc, err := l.WriteBlob(desc.MediaType, raw, nil)
	if err != nil {
		return err
	}

	if err := l.pullReferenced(ctx, client, ref, rootDesc, raw); err != nil {
		return err
	}
	return l.TagManifest(tag, rootDesc)
}

func (l *Layout) pullReferenced(ctx context.Context, client *registry.Client, ref reference.Container, desc oci.Descriptor, raw []byte) error {
	switch {
	case oci.IsIndex(desc.MediaType):
		var idx oci.Index
		if err := json.Unmarshal(raw, &idx); err != nil {
			return orerrors.Wrap(err, orerrors.SchemaInvalid, "pullReferenced", "decoding index")
		}
		for _, sub := range idx.Manifests {
			subRaw, subDescFromRegistry, err := client.FetchManifest(ctx, ref.WithDigest(sub.Digest.String()))
			if err != nil {
				return err
			}
			written, err := l.WriteBlob(subDescFromRegistry.MediaType, subRaw, nil)
			if err != nil {
				return err
			}
			if err := l.pullReferenced(ctx, client, ref, written, subRaw); err != nil {
				return err
			}
		}
		return nil

	case oci.IsManifest(desc.MediaType):
		var manifest oci.Manifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return orerrors.Wrap(err, orerrors.SchemaInvalid, "pullReferenced", "decoding manifest")
		}
		if err := l.pullBlob(ctx, client, ref, manifest.Config); err != nil {
			return err
		}
		for _, layer := range manifest.Layers {
			if err := l.pullBlob(ctx, client, ref, layer); err != nil {
				return err
			}
		}
		return nil

	default:
		return orerrors.New(orerrors.UnsupportedMediaType, "pullReferenced", "unsupported mediaType %q", desc.MediaType)
	}
}

func (l *Layout) pullBlob(ctx context.Context, client *registry.Client, ref reference.Container, desc oci.Descriptor) error {
	body, err := client.FetchBlob(ctx, ref, desc.Digest.String())
	if err != nil {
		return err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "pullBlob", "reading blob %s", desc.Digest)
	}
	_, err = l.WriteBlob(desc.MediaType, raw, desc.Annotations)
	return err
}
