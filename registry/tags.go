package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/bibin-skaria/orascore/reference"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// linkHeaderPattern extracts the URL out of an RFC 5988 Link header
// of the form `</v2/name/tags/list?n=50&last=v1>; rel="next"`.
var linkHeaderPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ListTags returns every tag in ref's repository, following the
// Link: rel="next" pagination header across as many requests as the
// registry requires, matching oras-py's generator-based tag listing.
func (c *Client) ListTags(ctx context.Context, ref reference.Container, pageSize int) ([]string, error) {
	var tags []string
	url := ref.TagsURL(c.schemeFor(ref), pageSize)

	for url != "" {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, orerrors.Wrap(err, orerrors.ProtocolError, "ListTags", "building request")
		}
		resp, err := c.doRequest(ctx, req, ref.Registry)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			defer drain(resp)
			return nil, orerrors.New(orerrors.ProtocolError, "ListTags", "GET %s returned %d", url, resp.StatusCode).WithURL(url)
		}

		var page struct {
			Tags []string `json:"tags"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if decodeErr != nil {
			return nil, orerrors.Wrap(decodeErr, orerrors.ProtocolError, "ListTags", "decoding tags page")
		}
		tags = append(tags, page.Tags...)

		url = nextPageURL(ref, c.schemeFor(ref), link)
	}
	return tags, nil
}

func nextPageURL(ref reference.Container, scheme, linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	m := linkHeaderPattern.FindStringSubmatch(linkHeader)
	if m == nil {
		return ""
	}
	next := m[1]
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	return resolveLocation(ref, scheme, next)
}
