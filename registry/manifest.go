package registry

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/bibin-skaria/orascore/reference"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// acceptedManifestTypes is sent as the Accept header on manifest
// fetches so the registry returns an OCI or Docker manifest/index
// rather than a legacy schema1 document.
var acceptedManifestTypes = []string{
	"application/vnd.oci.image.manifest.v1+json",
	"application/vnd.oci.image.index.v1+json",
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
}

// FetchManifest GETs the manifest or index addressed by ref (which
// may carry a tag or a digest) and returns its raw bytes and the
// mediaType/digest the server reported.
func (c *Client) FetchManifest(ctx context.Context, ref reference.Container) ([]byte, Descriptor, error) {
	url := ref.ManifestURL(c.schemeFor(ref), "")
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, Descriptor{}, orerrors.Wrap(err, orerrors.ProtocolError, "FetchManifest", "building request")
	}
	for _, mt := range acceptedManifestTypes {
		req.Header.Add("Accept", mt)
	}

	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return nil, Descriptor{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, Descriptor{}, orerrors.New(orerrors.ProtocolError, "FetchManifest", "GET %s returned %d", url, resp.StatusCode).WithURL(url)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Descriptor{}, orerrors.Wrap(err, orerrors.ProtocolError, "FetchManifest", "reading body")
	}

	digest := resp.Header.Get("Docker-Content-Digest")
	return raw, Descriptor{
		MediaType: resp.Header.Get("Content-Type"),
		Digest:    digest,
		Size:      int64(len(raw)),
	}, nil
}

// UploadManifest PUTs raw as the manifest for ref (tag or digest),
// setting the Content-Type the distribution spec requires.
func (c *Client) UploadManifest(ctx context.Context, ref reference.Container, mediaType string, raw []byte) error {
	url := ref.ManifestURL(c.schemeFor(ref), "")
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "UploadManifest", "building request")
	}
	req.Header.Set("Content-Type", mediaType)
	req.ContentLength = int64(len(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return orerrors.New(orerrors.ProtocolError, "UploadManifest", "PUT %s returned %d", url, resp.StatusCode).WithURL(url)
	}
	return nil
}

// DeleteManifest deletes the manifest addressed by ref's digest. If
// ref carries no digest, the DELETE is addressed by ref's tag; the
// tag is not resolved to a digest first.
func (c *Client) DeleteManifest(ctx context.Context, ref reference.Container) error {
	url := ref.ManifestURL(c.schemeFor(ref), ref.Digest)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "DeleteManifest", "building request")
	}
	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return orerrors.New(orerrors.ProtocolError, "DeleteManifest", "DELETE %s returned %d", url, resp.StatusCode).WithURL(url)
	}
	return nil
}

// DeleteBlob deletes the blob addressed by digest.
func (c *Client) DeleteBlob(ctx context.Context, ref reference.Container, digest string) error {
	url := ref.BlobURL(c.schemeFor(ref), digest)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "DeleteBlob", "building request")
	}
	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return orerrors.New(orerrors.ProtocolError, "DeleteBlob", "DELETE %s returned %d", url, resp.StatusCode).WithURL(url)
	}
	return nil
}
