package domain

import "strings"

// SharedWords counts the distinct lowercase whitespace-separated words that
// appear in both a and b.
func SharedWords(a, b string) int {
	left := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(a)) {
		left[w] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if _, ok := left[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		n++
	}
	return n
}
