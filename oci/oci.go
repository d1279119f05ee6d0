// Package oci builds and validates OCI image manifests, indexes, and
// configurations on top of github.com/opencontainers/image-spec's
// wire types, following oras-py's oci.py factory functions.
package oci

import (
	"encoding/json"

	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bibin-skaria/orascore/content"
	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// Media types accepted and produced by this package. OCI names are
// produced; Docker distribution names are accepted on read for
// interoperability with registries that still serve them.
const (
	MediaTypeImageManifest  = v1.MediaTypeImageManifest
	MediaTypeImageIndex     = v1.MediaTypeImageIndex
	MediaTypeImageConfig    = v1.MediaTypeImageConfig
	MediaTypeImageLayerGzip = v1.MediaTypeImageLayerGzip
	MediaTypeImageLayer     = v1.MediaTypeImageLayer
	MediaTypeEmptyJSON      = "application/vnd.oci.empty.v1+json"

	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerIndex    = "application/vnd.docker.distribution.manifest.list.v2+json"
	MediaTypeDockerConfig   = "application/vnd.docker.container.image.v1+json"
)

// BlankHash and BlankConfigHash are the well-known empty-payload
// digests: BlankHash is the digest of an empty byte string, and
// BlankConfigHash is the digest of "{}", the config oras-py
// substitutes when no config is supplied.
const (
	BlankHash       = digest.Digest("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	BlankConfigHash = digest.Digest("sha256:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a")
)

// Descriptor is an alias of the upstream wire type, kept local so
// callers import only this package for the common case.
type Descriptor = v1.Descriptor

// Manifest is an alias of the upstream OCI image manifest type.
type Manifest = v1.Manifest

// Index is an alias of the upstream OCI image index type.
type Index = v1.Index

// NewDescriptor builds a Descriptor from raw content, computing its
// digest and size and defaulting Annotations to nil rather than an
// empty, non-nil map, matching how empty optional fields are dropped
// from the marshaled JSON.
func NewDescriptor(mediaType string, raw []byte, annotations map[string]string) Descriptor {
	return Descriptor{
		MediaType:   mediaType,
		Digest:      content.SHA256Bytes(raw),
		Size:        int64(len(raw)),
		Annotations: annotations,
	}
}

// NewConfig returns the descriptor for a config blob. If raw is nil,
// the blank config (the canonical "{}" payload) is substituted, the
// same fallback oras-py's oci.py performs when no config path is given.
func NewConfig(mediaType string, raw []byte) (Descriptor, []byte) {
	if raw == nil {
		raw = []byte("{}")
	}
	if mediaType == "" {
		mediaType = MediaTypeImageConfig
	}
	return NewDescriptor(mediaType, raw, nil), raw
}

// NewLayer wraps raw layer bytes (typically a tar.gz produced by
// content.MakeTarGz) into a Descriptor with the given annotations.
func NewLayer(raw []byte, mediaType string, annotations map[string]string) Descriptor {
	if mediaType == "" {
		mediaType = MediaTypeImageLayerGzip
	}
	return NewDescriptor(mediaType, raw, annotations)
}

// NewManifest assembles a Manifest from a config descriptor, a set
// of layer descriptors, and manifest-level annotations.
func NewManifest(config Descriptor, layers []Descriptor, annotations map[string]string) Manifest {
	if layers == nil {
		layers = []Descriptor{}
	}
	return Manifest{
		Versioned:   v1.Versioned{SchemaVersion: 2},
		MediaType:   MediaTypeImageManifest,
		Config:      config,
		Layers:      layers,
		Annotations: annotations,
	}
}

// NewIndex assembles an Index from a set of manifest descriptors.
func NewIndex(manifests []Descriptor) Index {
	if manifests == nil {
		manifests = []Descriptor{}
	}
	return Index{
		Versioned: v1.Versioned{SchemaVersion: 2},
		MediaType: MediaTypeImageIndex,
		Manifests: manifests,
	}
}

// NewSubjectDescriptor attaches subject as the Subject field of a
// manifest, supporting the referrers/subject relationship without
// requiring the caller to mutate Manifest by hand.
func NewSubjectDescriptor(m Manifest, subject Descriptor) Manifest {
	m.Subject = &subject
	return m
}

// MarshalManifest serializes m to its canonical JSON form and
// returns both the bytes and the descriptor a caller should PUT
// alongside them.
func MarshalManifest(m Manifest) ([]byte, Descriptor, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, Descriptor{}, orerrors.Wrap(err, orerrors.SchemaInvalid, "MarshalManifest", "encoding manifest")
	}
	return raw, NewDescriptor(MediaTypeImageManifest, raw, nil), nil
}

// MarshalIndex serializes idx the same way MarshalManifest does for
// a single manifest.
func MarshalIndex(idx Index) ([]byte, Descriptor, error) {
	raw, err := json.Marshal(idx)
	if err != nil {
		return nil, Descriptor{}, orerrors.Wrap(err, orerrors.SchemaInvalid, "MarshalIndex", "encoding index")
	}
	return raw, NewDescriptor(MediaTypeImageIndex, raw, nil), nil
}

// IsManifest reports whether mediaType identifies a single-platform
// image manifest, OCI or Docker.
func IsManifest(mediaType string) bool {
	return mediaType == MediaTypeImageManifest || mediaType == MediaTypeDockerManifest
}

// IsIndex reports whether mediaType identifies a multi-platform
// image index, OCI or Docker.
func IsIndex(mediaType string) bool {
	return mediaType == MediaTypeImageIndex || mediaType == MediaTypeDockerIndex
}
