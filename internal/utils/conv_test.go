package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringToInt(t *testing.T) {
	for in, want := range map[string]int{
		"25":   25,
		" 7 ":  7,
		"":     0,
		"ten":  0,
		"-3":   0,
		"1e3":  0,
		"0042": 42,
	} {
		assert.Equal(t, want, StringToInt(in), in)
	}
}
