// Package reference parses and renders OCI container references of the
// form [registry/]namespace/repository[:tag][@digest], and derives the
// distribution API URLs a registry.Client needs to talk to that repository.
package reference

import (
	"fmt"
	"regexp"
	"strings"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// defaultRegistry is substituted when a reference omits a registry host,
// mirroring oras-py's container.py default of Docker Hub.
const defaultRegistry = "docker.io"

// referencePattern mirrors oras-py's docker_regex: an optional
// registry host (must contain a '.' or ':' to be distinguished from a
// plain repository path segment), an optional namespace of one or more
// slash-separated segments, a repository, an optional :tag and an
// optional @digest.
var referencePattern = regexp.MustCompile(
	`^(?:(?P<registry>[^/@]+[.:][^/@]*)/)?` +
		`(?P<namespace>(?:[^:@/]+/)+)?` +
		`(?P<repository>[^:@/]+)` +
		`(?::(?P<tag>[^:@]+))?` +
		`(?:@(?P<digest>.+))?$`,
)

// Container is a parsed reference: registry host, repository path
// (namespace plus leaf repository, slash-joined), and an optional
// tag and/or digest. A digest takes precedence over a tag whenever
// both are present and a single content address is required.
type Container struct {
	Registry   string
	Namespace  string
	Repository string
	Tag        string
	Digest     string
}

// Parse validates raw against the reference grammar and returns its
// parsed form. An empty repository, or a string that the grammar
// cannot match at all, is reported as InvalidReference.
func Parse(raw string) (Container, error) {
	if raw == "" {
		return Container{}, orerrors.New(orerrors.InvalidReference, "Parse", "reference is empty")
	}

	m := referencePattern.FindStringSubmatch(raw)
	if m == nil {
		return Container{}, orerrors.New(orerrors.InvalidReference, "Parse", "%q does not match the reference grammar", raw)
	}

	groups := namedGroups(referencePattern, m)
	repository := groups["repository"]
	if repository == "" {
		return Container{}, orerrors.New(orerrors.InvalidReference, "Parse", "%q has no repository component", raw)
	}

	c := Container{
		Registry:   groups["registry"],
		Namespace:  strings.TrimSuffix(groups["namespace"], "/"),
		Repository: repository,
		Tag:        groups["tag"],
		Digest:     groups["digest"],
	}
	if c.Registry == "" {
		c.Registry = defaultRegistry
	}
	if c.Tag == "" && c.Digest == "" {
		c.Tag = "latest"
	}
	return c, nil
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = match[i]
	}
	return groups
}

// Path returns the full repository path, namespace plus repository,
// as used in registry API URLs.
func (c Container) Path() string {
	if c.Namespace == "" {
		return c.Repository
	}
	return c.Namespace + "/" + c.Repository
}

// String renders c back into reference form, preferring digest over
// tag when both are set, matching Parse's own precedence.
func (c Container) String() string {
	s := fmt.Sprintf("%s/%s", c.Registry, c.Path())
	if c.Digest != "" {
		return s + "@" + c.Digest
	}
	if c.Tag != "" {
		return s + ":" + c.Tag
	}
	return s
}

// APIPrefix returns the distribution API base path for this
// repository: /v2/<path>.
func (c Container) APIPrefix() string {
	return "/v2/" + c.Path()
}

// ManifestURL returns the URL for fetching/putting the manifest
// addressed by ref, which may be a tag or a digest. If ref is empty,
// the container's own Tag is preferred, falling back to Digest: the
// same precedence container.py's get_manifest_url/put_manifest_url
// use, which address by tag unconditionally when one is present.
func (c Container) ManifestURL(scheme, ref string) string {
	if ref == "" {
		ref = c.manifestRef()
	}
	return fmt.Sprintf("%s://%s%s/manifests/%s", scheme, c.Registry, c.APIPrefix(), ref)
}

func (c Container) manifestRef() string {
	if c.Tag != "" {
		return c.Tag
	}
	return c.Digest
}

// BlobURL returns the URL for fetching or checking a blob by digest.
func (c Container) BlobURL(scheme, digest string) string {
	return fmt.Sprintf("%s://%s%s/blobs/%s", scheme, c.Registry, c.APIPrefix(), digest)
}

// UploadBlobURL returns the URL that starts a new resumable blob
// upload session (a POST target).
func (c Container) UploadBlobURL(scheme string) string {
	return fmt.Sprintf("%s://%s%s/blobs/uploads/", scheme, c.Registry, c.APIPrefix())
}

// TagsURL returns the URL for listing tags, applying the optional
// page size limit as the distribution spec's "n" query parameter.
func (c Container) TagsURL(scheme string, limit int) string {
	u := fmt.Sprintf("%s://%s%s/tags/list", scheme, c.Registry, c.APIPrefix())
	if limit > 0 {
		u += fmt.Sprintf("?n=%d", limit)
	}
	return u
}

// WithDigest returns a copy of c addressed by digest instead of tag.
func (c Container) WithDigest(digest string) Container {
	c.Digest = digest
	c.Tag = ""
	return c
}

// WithTag returns a copy of c addressed by tag instead of digest.
func (c Container) WithTag(tag string) Container {
	c.Tag = tag
	c.Digest = ""
	return c
}
