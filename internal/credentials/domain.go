package credentials

import (
	"regexp"
	"strings"
)

// DefaultDomain is the registry assumed for references without a domain segment.
const DefaultDomain = "docker.io"

var domainPattern = regexp.MustCompile(`^([A-Za-z0-9-]+\.)+[A-Za-z]{2,}$`)

// IsDomain reports whether s looks like a dotted DNS hostname.
func IsDomain(s string) bool {
	return domainPattern.MatchString(s)
}

// ImageDomain returns the registry host of uri, or def when the first path
// segment is not a hostname.
func ImageDomain(uri, def string) string {
	first, _, _ := strings.Cut(uri, "/")
	if IsDomain(first) {
		return first
	}
	return def
}
