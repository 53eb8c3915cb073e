package slices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveInPlace(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6}
	out := RemoveInPlace(in, func(v int, i int) bool { return v%2 == 0 || i == 0 })
	assert.Equal(t, []int{3, 5}, out)
}

func TestRuns(t *testing.T) {
	consecutive := func(a, b int) bool { return b == a+1 }
	assert.Nil(t, Runs([]int{}, consecutive))
	assert.Equal(t, [][2]int{{0, 1}}, Runs([]int{7}, consecutive))
	assert.Equal(t, [][2]int{{0, 3}, {3, 4}, {4, 6}}, Runs([]int{1, 2, 3, 5, 8, 9}, consecutive))
}
