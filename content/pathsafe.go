package content

import (
	"path/filepath"
	"strings"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// SanitizePath cleans member, a path read from a tar archive or a
// manifest annotation, and rejects it if it would escape base once
// joined and cleaned: absolute paths, and ".." segments that climb
// above base, are both treated as path traversal attempts. It
// mirrors oras-py's refusal to extract archive members outside the
// requested output directory.
func SanitizePath(base, member string) (string, error) {
	if member == "" {
		return "", orerrors.New(orerrors.PathTraversal, "SanitizePath", "empty member path")
	}
	if filepath.IsAbs(member) {
		return "", orerrors.New(orerrors.PathTraversal, "SanitizePath", "%q is an absolute path", member)
	}

	cleanedBase := filepath.Clean(base)
	joined := filepath.Join(cleanedBase, member)
	if err := ValidateWithinBase(cleanedBase, joined); err != nil {
		return "", err
	}
	return joined, nil
}

// ValidateWithinBase reports a PathTraversal error unless candidate,
// once made relative to base, stays within base.
func ValidateWithinBase(base, candidate string) error {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return orerrors.Wrap(err, orerrors.PathTraversal, "ValidateWithinBase", "%q is not relative to %q", candidate, base)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return orerrors.New(orerrors.PathTraversal, "ValidateWithinBase", "%q escapes base directory %q", candidate, base)
	}
	return nil
}
