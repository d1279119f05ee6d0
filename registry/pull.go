package registry

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bibin-skaria/orascore/oci"
	"github.com/bibin-skaria/orascore/reference"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// Pull fetches the manifest addressed by ref, then every blob it
// references (config and layers), recursing into sub-manifests when
// ref addresses an index - mirroring oras-py's _pull_index_blobs /
// _pull_manifest_blobs recursion.
func (c *Client) Pull(ctx context.Context, ref reference.Container) ([]Blob, error) {
	raw, desc, err := c.FetchManifest(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch {
	case oci.IsIndex(desc.MediaType):
		var idx oci.Index
		if err := json.Unmarshal(raw, &idx); err != nil {
			return nil, orerrors.Wrap(err, orerrors.SchemaInvalid, "Pull", "decoding index")
		}
		var blobs []Blob
		for _, m := range idx.Manifests {
			subRef := ref.WithDigest(m.Digest.String())
			subBlobs, err := c.Pull(ctx, subRef)
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, subBlobs...)
		}
		return blobs, nil

	case oci.IsManifest(desc.MediaType):
		var manifest oci.Manifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return nil, orerrors.Wrap(err, orerrors.SchemaInvalid, "Pull", "decoding manifest")
		}
		var blobs []Blob
		configData, err := c.fetchBlobBytes(ctx, ref, manifest.Config.Digest.String())
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, Blob{Descriptor: manifest.Config, Data: configData})

		for _, layer := range manifest.Layers {
			data, err := c.fetchBlobBytes(ctx, ref, layer.Digest.String())
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, Blob{Descriptor: layer, Data: data})
		}
		return blobs, nil

	default:
		return nil, orerrors.New(orerrors.UnsupportedMediaType, "Pull", "unsupported manifest mediaType %q", desc.MediaType)
	}
}

func (c *Client) fetchBlobBytes(ctx context.Context, ref reference.Container, digest string) ([]byte, error) {
	body, err := c.FetchBlob(ctx, ref, digest)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.ProtocolError, "fetchBlobBytes", "reading blob %s", digest)
	}
	return data, nil
}
