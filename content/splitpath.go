package content

import (
	"regexp"
	"strings"
)

// driveLetterPattern matches a Windows-style drive prefix ("C:") so
// SplitPathAndContent doesn't mistake it for a media-type separator.
var driveLetterPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// SplitPathAndContent splits a "path:media/type" style argument, as
// accepted by push-from-files flows, into its path and media type
// components. A Windows drive letter ("C:\foo\bar") is not treated
// as a media type separator. If no ':' is present the media type is
// empty and the caller should infer one.
func SplitPathAndContent(arg string) (path, mediaType string) {
	if driveLetterPattern.MatchString(arg) {
		rest := arg[2:]
		if idx := strings.LastIndex(rest, ":"); idx >= 0 {
			return arg[:2] + rest[:idx], rest[idx+1:]
		}
		return arg, ""
	}
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return arg, ""
	}
	return arg[:idx], arg[idx+1:]
}
