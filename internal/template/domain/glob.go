package domain

import (
	"path"
	"strings"
)

// MatchGlob reports whether the slash-separated name matches pattern.
// Segments use path.Match syntax; a "**" segment matches zero or more segments.
func MatchGlob(pattern, name string) bool {
	return matchSegments(splitSegments(pattern), splitSegments(name))
}

// MatchGlobOrAncestor reports whether name or any of its parent directories
// matches pattern, so a pattern naming a directory covers its whole subtree.
func MatchGlobOrAncestor(pattern, name string) bool {
	for p := name; p != "." && p != "" && p != "/"; p = path.Dir(p) {
		if MatchGlob(pattern, p) {
			return true
		}
	}
	return false
}

// ValidateGlob reports malformed patterns.
func ValidateGlob(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return path.ErrBadPattern
	}
	for _, seg := range splitSegments(pattern) {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, seg); err != nil {
			return err
		}
		if _, err := path.Match(seg, ""); err != nil {
			return err
		}
	}
	return nil
}

func splitSegments(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
