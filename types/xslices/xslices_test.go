package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	s := []float64{3, 5, 7}
	got := Map(s, func(v float64) int { return int(2 * v) })
	require.Equal(t, []int{6, 10, 14}, got)
}

func TestAtAndLast(t *testing.T) {
	s := []int{2, 3, 5}
	assert.Equal(t, 5, Last(s))
	assert.Equal(t, 5, At(s, -1))
	assert.Equal(t, 3, At(s, 1))
	assert.Panics(t, func() { At(s, 3) })
}

func TestIota(t *testing.T) {
	require.Equal(t, []int{0, 1, 2, 3}, Iota(0, 4))
	require.Equal(t, []float32{1, 2, 3}, Iota(float32(1), 3))
	require.Empty(t, Iota(0, 0))
}
