package registry

import (
	"bytes"
	"context"

	"github.com/bibin-skaria/orascore/oci"
	"github.com/bibin-skaria/orascore/reference"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// Blob pairs a descriptor with the bytes it describes, the unit
// Push uploads one at a time.
type Blob struct {
	Descriptor oci.Descriptor
	Data       []byte
}

// Push uploads config and every layer by digest, then uploads the
// manifest itself addressed by ref's tag (or digest, if ref carries
// no tag) - mirroring oras-py's push_to_registry ordering, where the
// manifest is always the last thing written so a partially-uploaded
// push never leaves a tag pointing at missing blobs.
func (c *Client) Push(ctx context.Context, ref reference.Container, manifest oci.Manifest, config Blob, layers []Blob) error {
	if err := oci.ValidateManifest(manifest); err != nil {
		return err
	}

	if _, err := c.uploadByDescriptor(ctx, ref, config.Descriptor, config.Data); err != nil {
		return err
	}
	for _, layer := range layers {
		if _, err := c.uploadByDescriptor(ctx, ref, layer.Descriptor, layer.Data); err != nil {
			return err
		}
	}

	raw, desc, err := oci.MarshalManifest(manifest)
	if err != nil {
		return err
	}
	manifestRef := ref
	if manifestRef.Digest == "" && manifestRef.Tag == "" {
		manifestRef.Digest = desc.Digest.String()
	}
	return c.UploadManifest(ctx, manifestRef, desc.MediaType, raw)
}

func (c *Client) uploadByDescriptor(ctx context.Context, ref reference.Container, desc oci.Descriptor, data []byte) (string, error) {
	if desc.Digest == "" {
		return "", orerrors.New(orerrors.SchemaInvalid, "uploadByDescriptor", "descriptor missing digest")
	}
	if int64(len(data)) > c.chunkThreshold() {
		return c.UploadBlobChunked(ctx, ref, bytes.NewReader(data), int64(len(data)))
	}
	return c.UploadBlobMonolithic(ctx, ref, data)
}

func (c *Client) chunkThreshold() int64 {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return defaultChunkThreshold
}

const defaultChunkThreshold = 64 * 1024 * 1024
