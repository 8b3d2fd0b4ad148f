package registry

import (
	"sort"
	"strings"
)

// HasCapabilities reports whether have contains every capability in want.
// Matching ignores case and surrounding space.
func HasCapabilities(have []string, want ...string) bool {
	for _, w := range want {
		if !hasCapability(have, w) {
			return false
		}
	}
	return true
}

func hasCapability(have []string, want string) bool {
	want = normalizeCapability(want)
	for _, c := range have {
		if c == want {
			return true
		}
	}
	return false
}

func normalizeCapability(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// normalizeCapabilities lowercases, trims, drops empties and duplicates, and sorts.
func normalizeCapabilities(caps []string) []string {
	seen := make(map[string]bool, len(caps))
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		c = normalizeCapability(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// capabilityHistogram counts how many entries declare each capability.
func capabilityHistogram(entries []Entry) map[string]int {
	h := make(map[string]int)
	for _, e := range entries {
		for _, c := range e.Capabilities {
			h[c]++
		}
	}
	return h
}
