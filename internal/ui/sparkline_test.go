package ui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁▁▁▁", Sparkline(nil, 4))
	assert.Equal(t, "", Sparkline([]float64{1}, 0))
	assert.Equal(t, "▁▁▁█", Sparkline([]float64{5}, 4), "short input is left padded")
	assert.Equal(t, "▁▄█", Sparkline([]float64{0, 50, 100}, 3))
}

func TestSparklineKeepsNewestSamples(t *testing.T) {
	s := Sparkline([]float64{100, 1, 2, 3}, 3)
	assert.Equal(t, 3, utf8.RuneCountInString(s))
	assert.Equal(t, '█', []rune(s)[2])
}
