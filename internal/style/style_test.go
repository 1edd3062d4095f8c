package style

import (
	"math"
	"testing"
	"time"

	"github.com/gogpu/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowe/dartviz/internal/history"
)

var epoch = time.Date(2025, 4, 1, 19, 30, 0, 0, time.UTC)

func TestColorFor_CyclesThroughPalette(t *testing.T) {
	r := NewResolver(nil)

	assert.Equal(t, gg.Hex("#ff0000"), r.ColorFor(1))
	assert.Equal(t, gg.Hex("#0000ff"), r.ColorFor(2))
	assert.Equal(t, gg.Hex("#8800ff"), r.ColorFor(8))
	assert.Equal(t, gg.Hex("#ff0000"), r.ColorFor(9))
	assert.Equal(t, gg.Hex("#0000ff"), r.ColorFor(10))
}

func TestColorFor_NonPositiveIDs(t *testing.T) {
	r := NewResolver(nil)

	assert.Equal(t, gg.Hex("#8800ff"), r.ColorFor(0))
	assert.Equal(t, gg.Hex("#ff8800"), r.ColorFor(-1))
}

func TestColorFor_CustomPalette(t *testing.T) {
	r := NewResolver([]string{"#112233", "#445566"})

	assert.Equal(t, gg.Hex("#112233"), r.ColorFor(1))
	assert.Equal(t, gg.Hex("#445566"), r.ColorFor(2))
	assert.Equal(t, gg.Hex("#112233"), r.ColorFor(3))
}

func TestOpacity_SingleMarker(t *testing.T) {
	assert.Equal(t, 0.9, Opacity(0, 1))
}

func TestOpacity_EndpointsAndSteps(t *testing.T) {
	tests := []struct {
		n    int
		want []float64
	}{
		{2, []float64{0.9, 0.5}},
		{3, []float64{0.9, 0.7, 0.5}},
		{5, []float64{0.9, 0.8, 0.7, 0.6, 0.5}},
	}

	for _, tt := range tests {
		for rank, want := range tt.want {
			assert.InDelta(t, want, Opacity(rank, tt.n), 1e-9, "n=%d rank=%d", tt.n, rank)
		}
	}
}

func TestOpacity_StrictlyDecreasingWithinBounds(t *testing.T) {
	for n := 2; n <= 12; n++ {
		prev := math.Inf(1)
		for rank := 0; rank < n; rank++ {
			o := Opacity(rank, n)
			require.Less(t, o, prev, "n=%d rank=%d", n, rank)
			require.GreaterOrEqual(t, o, OldestOpacity-1e-12)
			require.LessOrEqual(t, o, NewestOpacity+1e-12)
			prev = o
		}
	}
}

func TestRank(t *testing.T) {
	group := []history.Marker{
		{EntityID: 1, Value: 1, CreatedAt: epoch, Seq: 1},
		{EntityID: 1, Value: 2, CreatedAt: epoch.Add(time.Second), Seq: 2},
		{EntityID: 1, Value: 3, CreatedAt: epoch.Add(time.Second), Seq: 3},
	}

	assert.Equal(t, 2, Rank(group[0], group))
	assert.Equal(t, 1, Rank(group[1], group))
	assert.Equal(t, 0, Rank(group[2], group))
}

func TestResolve(t *testing.T) {
	r := NewResolver(nil)
	group := []history.Marker{
		{EntityID: 2, Value: 20, CreatedAt: epoch, Seq: 1},
		{EntityID: 2, Value: 5, CreatedAt: epoch.Add(time.Second), Seq: 2},
	}

	oldest := r.Resolve(group[0], group)
	newest := r.Resolve(group[1], group)

	assert.Equal(t, gg.Hex("#0000ff"), oldest.Color)
	assert.InDelta(t, 0.5, oldest.Opacity, 1e-9)
	assert.InDelta(t, 0.9, newest.Opacity, 1e-9)
}

func TestStyle_FillQuantizesAlpha(t *testing.T) {
	s := Style{Color: gg.Hex("#ff0000"), Opacity: 0.9}

	fill := s.Fill()

	assert.Equal(t, 1.0, fill.R)
	assert.InDelta(t, 229.0/255.0, fill.A, 1e-12)
}
