package helpers

import (
	"regexp"
	"strconv"
)

var citationMarkerRe = regexp.MustCompile(`\[S(\d+)\]`)

// CitedLabels extracts the distinct citation labels ([S1], [S2], ...)
// present in text, as 1-based numbers in first-occurrence order.
func CitedLabels(text string) []int {
	matches := citationMarkerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(matches))
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
