package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/containerfs/containerfs/pkg/errors"
)

// NormalizePath canonicalizes a virtual path: backslashes become forward
// slashes, a leading slash is ensured, repeated slashes collapse, and "." /
// ".." segments are resolved against a stack. The root is always "/" and a
// trailing slash is dropped everywhere else.
//
// Example usage:
//
//	NormalizePath(`a\b/../c//`) == "/a/c"
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var stack []string
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".":
			// collapsed slash or no-op segment
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, segment)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// JoinPaths joins a base path with a relative one. An absolute second
// argument wins outright; anything else is concatenated and normalized.
func JoinPaths(base, relative string) string {
	rel := strings.ReplaceAll(relative, "\\", "/")
	if strings.HasPrefix(rel, "/") {
		return NormalizePath(rel)
	}
	if base == "" {
		base = "/"
	}
	return NormalizePath(base + "/" + rel)
}

// ParentPath returns the normalized path minus its last segment. The parent
// of the root is the root.
func ParentPath(path string) string {
	p := NormalizePath(path)
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// Filename returns the last segment of the normalized path; empty for the
// root.
func Filename(path string) string {
	p := NormalizePath(path)
	if p == "/" {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// SplitPath returns the normalized path's segments in order, without the
// leading root. The root yields an empty slice.
func SplitPath(path string) []string {
	p := NormalizePath(path)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// ValidatePath rejects paths that are not well-formed UTF-8. All other
// inputs normalize to something usable.
func ValidatePath(path string) error {
	if !utf8.ValidString(path) {
		return errors.InvalidArgument("path is not valid UTF-8")
	}
	return nil
}
