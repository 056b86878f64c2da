// Package utils contains tiny request-parsing helpers shared by HTTP
// handlers.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer and returns def when s is empty
// or not a valid integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
