package utils

import (
	"strconv"
	"strings"
)

// StringToInt converts a query value to int, returning 0 when it is empty,
// malformed or negative.
func StringToInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return 0
	}
	return i
}
