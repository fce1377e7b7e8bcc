package auth

import (
	"path"
	"strings"
)

// publicPaths matches request paths against the unauthenticated prefixes of
// the admin API. Prefixes are cleaned once when the set is built.
type publicPaths struct {
	prefixes []string
	all      bool
}

func newPublicPaths(paths []string) publicPaths {
	set := publicPaths{prefixes: make([]string, 0, len(paths))}
	for _, p := range paths {
		p = normalizePath(p)
		if p == "/" {
			set.all = true
		}
		set.prefixes = append(set.prefixes, p)
	}
	return set
}

// match is segment aware: /health covers /health/live but not /healthz.
// Paths carrying an encoded slash or dot never match, since the router may
// decode them after this check.
func (s publicPaths) match(requestPath string) bool {
	if hasEncodedSeparator(requestPath) {
		return false
	}
	if s.all {
		return true
	}
	p := normalizePath(requestPath)
	for _, prefix := range s.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// IsPublicPath reports whether requestPath is served without authentication
func IsPublicPath(requestPath string, paths []string) bool {
	return newPublicPaths(paths).match(requestPath)
}

// normalizePath resolves dot segments and duplicate slashes so that
// /health/../v1/tenants is checked as /v1/tenants
func normalizePath(p string) string {
	return path.Clean("/" + p)
}

func hasEncodedSeparator(p string) bool {
	for i := 0; i+2 < len(p); i++ {
		if p[i] != '%' || p[i+1] != '2' {
			continue
		}
		switch p[i+2] {
		case 'f', 'F', 'e', 'E':
			return true
		}
	}
	return false
}
