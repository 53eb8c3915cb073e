package model

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeWindow(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    TimeWindow
		wantErr bool
	}{
		{in: "", want: TimeWindow{}},
		{in: "0-100", want: TimeWindow{Start: 0, End: 100, Set: true}},
		{in: " 5 - 5 ", want: TimeWindow{Start: 5, End: 5, Set: true}},
		{in: "100-0", wantErr: true},
		{in: "100", wantErr: true},
		{in: "a-100", wantErr: true},
		{in: "0-b", wantErr: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeWindow(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTimeWindow))
				var twErr *InvalidTimeWindowError
				assert.True(t, errors.As(err, &twErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeWindow(t *testing.T) {
	var unset TimeWindow
	assert.True(t, unset.Contains(-1))
	assert.Equal(t, unset, unset.Expand(10))
	assert.NoError(t, unset.Validate())

	w, err := NewTimeWindow(10, 20)
	require.NoError(t, err)
	assert.True(t, w.Contains(10))
	assert.True(t, w.Contains(20))
	assert.False(t, w.Contains(21))
	assert.Equal(t, TimeWindow{Start: 5, End: 25, Set: true}, w.Expand(5))
	assert.Equal(t, "10-20", w.String())

	edge := TimeWindow{Start: math.MinInt64 + 1, End: math.MaxInt64 - 1, Set: true}
	assert.Equal(t, TimeWindow{Start: math.MinInt64, End: math.MaxInt64, Set: true}, edge.Expand(5))
	assert.True(t, edge.Expand(5).Contains(math.MaxInt64))

	_, err = NewTimeWindow(20, 10)
	assert.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestParseAllocKinds(t *testing.T) {
	c, err := ParseAllocCategory("kmem_cache")
	require.NoError(t, err)
	assert.Equal(t, CategoryKmemCache, c)

	_, err = ParseAllocCategory("vmalloc")
	assert.ErrorIs(t, err, ErrUnknownAllocationKind)

	d, err := ParseAllocDirection("Malloc")
	require.NoError(t, err)
	assert.Equal(t, DirectionAlloc, d)

	d, err = ParseAllocDirection("Free")
	require.NoError(t, err)
	assert.Equal(t, DirectionFree, d)

	_, err = ParseAllocDirection("Realloc")
	var kindErr *UnknownAllocationKindError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, "alloc_direction", kindErr.Field)
	assert.Equal(t, "Realloc", kindErr.Value)

	assert.ErrorIs(t, AllocationEvent{Category: CategoryTotal, Direction: DirectionAlloc}.Validate(), ErrUnknownAllocationKind)
	assert.NoError(t, AllocationEvent{Category: CategoryKmalloc, Direction: DirectionFree}.Validate())
}

func TestSpanValidate(t *testing.T) {
	ok := Span{StartTime: 10, EndTime: 30, Duration: 20, InnerDuration: 5}
	assert.NoError(t, ok.Validate())

	for name, s := range map[string]Span{
		"reversed":       {StartTime: 30, EndTime: 10, Duration: -20},
		"duration":       {StartTime: 10, EndTime: 30, Duration: 15},
		"inner too long": {StartTime: 10, EndTime: 30, Duration: 20, InnerDuration: 25},
	} {
		assert.Error(t, s.Validate(), name)
	}

	rebased := ok.Rebase(10)
	assert.Equal(t, int64(0), rebased.StartTime)
	assert.Equal(t, int64(20), rebased.EndTime)
	assert.Equal(t, int64(20), rebased.Duration)
}
