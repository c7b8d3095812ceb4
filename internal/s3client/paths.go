package s3client

import (
	"net/url"
	"strings"
)

// PathResolver maps path segments to object keys. A leading "s3://bucket/"
// qualifier is dropped.
type PathResolver struct{}

func (PathResolver) Resolve(segments ...string) string {
	joined := strings.Join(segments, "/")
	if rest, ok := strings.CutPrefix(joined, "s3://"); ok {
		_, joined, _ = strings.Cut(rest, "/")
	}

	var parts []string
	for _, s := range strings.Split(joined, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return RootID
	}
	return strings.Join(parts, "/")
}

// Page tokens carry both list markers.
func encodeToken(keyMarker, versionMarker string) string {
	return url.Values{"k": {keyMarker}, "v": {versionMarker}}.Encode()
}

func decodeToken(token string) (string, string) {
	v, _ := url.ParseQuery(token)
	return v.Get("k"), v.Get("v")
}
