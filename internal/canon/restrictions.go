package canon

import "strings"

// AllowedPrefixes returns the JSON-Pointer path prefixes writable in the
// given phase. An empty result means the phase is read-only. A single "/"
// entry means every path is writable (subject to final schema validation).
//
// Phase 1's inclusion of /inhabitants alongside the placeholder scalar
// fields resolves an ambiguity in spec.md's prose ("placeholder subtrees")
// using original_source/apps/api/worldbuild_api/engine/rules.py, which
// names it explicitly.
func AllowedPrefixes(phase int) []string {
	switch phase {
	case 1:
		return []string{"/world_name", "/governing_logic", "/aesthetic_mood", "/inhabitants"}
	case 2:
		return []string{"/landmarks"}
	case 3:
		return []string{"/tension"}
	case 4:
		return []string{"/"}
	default:
		return nil
	}
}

// pathAllowed reports whether path is rooted at one of the given prefixes.
func pathAllowed(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "/" {
			return true
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
