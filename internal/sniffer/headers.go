package sniffer

import (
	"fmt"
	"strings"
)

// DedupeHeaders trims header names, names blank columns "Column N" and
// suffixes repeats with _2, _3 and so on.
func DedupeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))

	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}

		name := h
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}
