package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/insightloom/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"words", "hello world!", 3},
		{"multibyte", "ééééééééé", 2},
		{"long", strings.Repeat("a", 4000), 1000},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, utils.CountTokens(c.in), c.name)
	}
}

func TestFitsContext(t *testing.T) {
	assert.True(t, utils.FitsContext(100, 50, 200))
	assert.True(t, utils.FitsContext(150, 50, 200))
	assert.False(t, utils.FitsContext(151, 50, 200))
	assert.True(t, utils.FitsContext(1_000_000, 0, 0))
}
