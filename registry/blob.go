package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/orascore/content"
	"github.com/bibin-skaria/orascore/oci"
	"github.com/bibin-skaria/orascore/reference"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// isUploadSuccess reports whether status is one of the three codes
// the distribution spec allows a blob PUT to answer with.
func isUploadSuccess(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}

// isBlankDigest reports whether digest is the well-known empty-payload
// hash, the one case the distribution spec calls out as tolerated to
// fail: registries that forbid zero-length blobs reject it outright,
// and that rejection is treated as success rather than propagated.
func isBlankDigest(digest string) bool {
	return digest == string(oci.BlankHash)
}

// BlobExists issues a HEAD for digest and reports whether the
// registry already has it, letting push skip re-uploading blobs.
func (c *Client) BlobExists(ctx context.Context, ref reference.Container, digest string) (bool, error) {
	url := ref.BlobURL(c.schemeFor(ref), digest)
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return false, orerrors.Wrap(err, orerrors.ProtocolError, "BlobExists", "building request")
	}
	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK, nil
}

// FetchBlob GETs the blob identified by digest and returns its body;
// the caller is responsible for closing it.
func (c *Client) FetchBlob(ctx context.Context, ref reference.Container, digest string) (io.ReadCloser, error) {
	url := ref.BlobURL(c.schemeFor(ref), digest)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.ProtocolError, "FetchBlob", "building request")
	}
	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer drain(resp)
		return nil, orerrors.New(orerrors.ProtocolError, "FetchBlob", "GET %s returned %d", url, resp.StatusCode).WithURL(url)
	}
	return resp.Body, nil
}

// UploadBlobMonolithic uploads raw in a single POST+PUT, skipping the
// chunked session entirely; this is oras-py's default upload path for
// blobs under chunked-upload size.
func (c *Client) UploadBlobMonolithic(ctx context.Context, ref reference.Container, raw []byte) (string, error) {
	digest := content.SHA256Bytes(raw).String()

	exists, err := c.BlobExists(ctx, ref, digest)
	if err != nil {
		return "", err
	}
	if exists {
		return digest, nil
	}

	sessionURL, err := c.startUploadSession(ctx, ref)
	if err != nil {
		return "", err
	}

	putURL := sessionURL + addQueryParam(sessionURL, "digest", digest)
	req, err := http.NewRequest(http.MethodPut, putURL, bytes.NewReader(raw))
	if err != nil {
		return "", orerrors.Wrap(err, orerrors.ProtocolError, "UploadBlobMonolithic", "building PUT request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if !isUploadSuccess(resp.StatusCode) {
		if isBlankDigest(digest) {
			log.WithFields(logrus.Fields{"digest": digest, "status": resp.StatusCode}).Debug("registry rejected empty blob, synthesizing success")
			return digest, nil
		}
		return "", orerrors.New(orerrors.ProtocolError, "UploadBlobMonolithic", "PUT %s returned %d", putURL, resp.StatusCode).WithURL(putURL)
	}
	return digest, nil
}

// UploadBlobChunked uploads r in ChunkSize pieces via repeated PATCH
// requests, always refreshing the session URL from each response's
// Location header before issuing the next PATCH (per the Open
// Question in the spec's chunked-upload section, which this module
// resolves in favor of always trusting the latest Location rather
// than the session's original one).
func (c *Client) UploadBlobChunked(ctx context.Context, ref reference.Container, r io.Reader, totalSize int64) (string, error) {
	sessionURL, err := c.startUploadSession(ctx, ref)
	if err != nil {
		return "", err
	}

	verifier := content.Algorithm.Digester()
	tee := io.TeeReader(r, verifier.Hash())

	chunkSize := c.ChunkSize
	if chunkSize <= 0 {
		chunkSize = content.DefaultChunkSize
	}

	err = content.ReadInChunks(tee, chunkSize, func(chunk content.Chunk) error {
		end := chunk.Offset + int64(len(chunk.Data)) - 1
		req, reqErr := http.NewRequest(http.MethodPatch, sessionURL, bytes.NewReader(chunk.Data))
		if reqErr != nil {
			return orerrors.Wrap(reqErr, orerrors.ProtocolError, "UploadBlobChunked", "building PATCH request")
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Range", fmt.Sprintf("%d-%d", chunk.Offset, end))
		req.ContentLength = int64(len(chunk.Data))

		resp, doErr := c.doRequest(ctx, req, ref.Registry)
		if doErr != nil {
			return doErr
		}
		defer drain(resp)
		if resp.StatusCode != http.StatusAccepted {
			return orerrors.New(orerrors.ProtocolError, "UploadBlobChunked", "PATCH %s returned %d", sessionURL, resp.StatusCode).WithURL(sessionURL)
		}
		if loc := resp.Header.Get("Location"); loc != "" {
			sessionURL = loc
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	digest := verifier.Digest().String()
	putURL := sessionURL + addQueryParam(sessionURL, "digest", digest)
	req, err := http.NewRequest(http.MethodPut, putURL, nil)
	if err != nil {
		return "", orerrors.Wrap(err, orerrors.ProtocolError, "UploadBlobChunked", "building final PUT request")
	}
	req.ContentLength = 0

	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if !isUploadSuccess(resp.StatusCode) {
		if isBlankDigest(digest) {
			log.WithFields(logrus.Fields{"digest": digest, "status": resp.StatusCode}).Debug("registry rejected empty blob, synthesizing success")
			return digest, nil
		}
		return "", orerrors.New(orerrors.ProtocolError, "UploadBlobChunked", "final PUT %s returned %d", putURL, resp.StatusCode).WithURL(putURL)
	}
	return digest, nil
}

func (c *Client) startUploadSession(ctx context.Context, ref reference.Container) (string, error) {
	url := ref.UploadBlobURL(c.schemeFor(ref))
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return "", orerrors.Wrap(err, orerrors.ProtocolError, "startUploadSession", "building POST request")
	}
	resp, err := c.doRequest(ctx, req, ref.Registry)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusAccepted {
		return "", orerrors.New(orerrors.ProtocolError, "startUploadSession", "POST %s returned %d", url, resp.StatusCode).WithURL(url)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", orerrors.New(orerrors.ProtocolError, "startUploadSession", "POST %s returned no Location header", url).WithURL(url)
	}
	return resolveLocation(ref, c.schemeFor(ref), loc), nil
}

// resolveLocation turns a Location header, which may be a full URL
// or a path-only value, into an absolute URL against ref's registry.
func resolveLocation(ref reference.Container, scheme, loc string) string {
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return loc
	}
	if !strings.HasPrefix(loc, "/") {
		loc = "/" + loc
	}
	return fmt.Sprintf("%s://%s%s", scheme, ref.Registry, loc)
}

func addQueryParam(url, key, value string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return sep + key + "=" + value
}
