package graph

import (
	"net/url"
	"strings"
)

// PathResolver turns drive paths into root-relative addresses, for example
// "Documents/My Files" into "/drives/abc/root:/Documents/My%20Files:".
type PathResolver struct {
	driveRoot string
}

// NewPathResolver returns a resolver for driveID, or for the signed-in
// user's drive when driveID is empty.
func NewPathResolver(driveID string) PathResolver {
	return PathResolver{driveRoot: strings.TrimPrefix(drivePrefix(driveID), "/") + "/root"}
}

// Resolve joins segments into one address. Input that is already qualified
// with the drive root is unwrapped first, so resolving an address again
// returns it unchanged.
func (p PathResolver) Resolve(segments ...string) string {
	rest := strings.Trim(strings.Join(segments, "/"), "/")

	if after, ok := p.cutRoot(rest); ok {
		rest = strings.Trim(after, "/")
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSuffix(rest, ":")
		rest = strings.Trim(rest, "/")
		if unescaped, err := url.PathUnescape(rest); err == nil {
			rest = unescaped
		}
	}

	if rest == "" {
		return "/" + p.driveRoot
	}

	parts := strings.Split(rest, "/")
	escaped := parts[:0]
	for _, s := range parts {
		if s == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(s))
	}
	return "/" + p.driveRoot + ":/" + strings.Join(escaped, "/") + ":"
}

// cutRoot returns what follows the drive root when s starts with it. The
// drive id may be escaped or not.
func (p PathResolver) cutRoot(s string) (string, bool) {
	roots := []string{p.driveRoot}
	if raw, err := url.PathUnescape(p.driveRoot); err == nil && raw != p.driveRoot {
		roots = append(roots, raw)
	}
	for _, root := range roots {
		after, ok := strings.CutPrefix(s, root)
		if ok && (after == "" || after[0] == ':' || after[0] == '/') {
			return after, true
		}
	}
	return "", false
}

func drivePrefix(driveID string) string {
	if driveID == "" {
		return "/me/drive"
	}
	return "/drives/" + url.PathEscape(driveID)
}
