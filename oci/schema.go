package oci

import (
	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// pinnedSchemaVersion is the only schemaVersion this package accepts
// for manifests and indexes (not to be confused with the image layout
// version, which layout pins separately).
const pinnedSchemaVersion = 2

// ValidateManifest checks m's structural shape: schema version,
// presence of a config descriptor, and that every descriptor (config
// and layers) carries a digest and media type.
func ValidateManifest(m Manifest) error {
	if m.SchemaVersion != pinnedSchemaVersion {
		return orerrors.New(orerrors.SchemaInvalid, "ValidateManifest", "unsupported schemaVersion %d", m.SchemaVersion)
	}
	if m.Config.Digest == "" {
		return orerrors.New(orerrors.SchemaInvalid, "ValidateManifest", "config descriptor missing digest")
	}
	if err := validateDescriptor(m.Config); err != nil {
		return err
	}
	for i, l := range m.Layers {
		if err := validateDescriptor(l); err != nil {
			return orerrors.Wrap(err, orerrors.SchemaInvalid, "ValidateManifest", "layer[%d]", i)
		}
	}
	return nil
}

// ValidateIndex checks idx's structural shape: schema version and
// that every referenced manifest descriptor is well-formed.
func ValidateIndex(idx Index) error {
	if idx.SchemaVersion != pinnedSchemaVersion {
		return orerrors.New(orerrors.SchemaInvalid, "ValidateIndex", "unsupported schemaVersion %d", idx.SchemaVersion)
	}
	for i, m := range idx.Manifests {
		if err := validateDescriptor(m); err != nil {
			return orerrors.Wrap(err, orerrors.SchemaInvalid, "ValidateIndex", "manifests[%d]", i)
		}
	}
	return nil
}

func validateDescriptor(d Descriptor) error {
	if d.MediaType == "" {
		return orerrors.New(orerrors.SchemaInvalid, "validateDescriptor", "missing mediaType")
	}
	if d.Digest == "" {
		return orerrors.New(orerrors.SchemaInvalid, "validateDescriptor", "missing digest")
	}
	if err := d.Digest.Validate(); err != nil {
		return orerrors.Wrap(err, orerrors.SchemaInvalid, "validateDescriptor", "invalid digest %q", d.Digest)
	}
	if d.Size < 0 {
		return orerrors.New(orerrors.SchemaInvalid, "validateDescriptor", "negative size")
	}
	return nil
}
