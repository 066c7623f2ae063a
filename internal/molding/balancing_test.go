package molding

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition("left")
	require.NoError(t, err)
	assert.Equal(t, PositionLeft, pos)

	pos, err = ParsePosition("right")
	require.NoError(t, err)
	assert.Equal(t, PositionRight, pos)

	_, err = ParsePosition("LEFT")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestBalancingWeight_ApplyWeight(t *testing.T) {
	opts := []float64{2, 5, 10}
	bw := NewBalancingWeight(opts, PositionLeft)
	opts[0] = 99

	assert.Equal(t, []float64{2, 5, 10}, bw.WeightOptions, "options are copied")

	assert.True(t, bw.ApplyWeight(5))
	assert.Equal(t, 5.0, bw.Weight)

	assert.False(t, bw.ApplyWeight(7))
	assert.Equal(t, 5.0, bw.Weight, "rejected value leaves weight unchanged")

	assert.Equal(t, 2.5, bw.CalculateBalanceContribution(0.5))
	assert.Equal(t, 5.0, bw.CalculateBalanceContribution(DefaultWeightDistance))
}

func TestBalancingWeight_CalculateOptimalWeights(t *testing.T) {
	bw := NewBalancingWeight([]float64{2, 10, 5}, PositionLeft)
	positions := []Position{PositionLeft, PositionRight, PositionLeft}

	tests := []struct {
		name   string
		target float64
		want   []WeightPlacement
	}{
		{
			name:   "exact cover",
			target: 12,
			want: []WeightPlacement{
				{Weight: 10, Position: PositionLeft},
				{Weight: 2, Position: PositionRight},
			},
		},
		{
			name:   "negative target uses magnitude",
			target: -12,
			want: []WeightPlacement{
				{Weight: 10, Position: PositionLeft},
				{Weight: 2, Position: PositionRight},
			},
		},
		{
			name:   "one weight per position",
			target: 40,
			want: []WeightPlacement{
				{Weight: 10, Position: PositionLeft},
				{Weight: 10, Position: PositionRight},
				{Weight: 10, Position: PositionLeft},
			},
		},
		{
			name:   "target below smallest option",
			target: 1,
			want:   []WeightPlacement{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bw.CalculateOptimalWeights(tt.target, positions)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CalculateOptimalWeights() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.Empty(t, bw.CalculateOptimalWeights(12, nil))
}

func TestBalancingWeight_MinimizeWeightCount(t *testing.T) {
	tests := []struct {
		name    string
		options []float64
		target  float64
		want    int
	}{
		{name: "unit options count the floor", options: []float64{1}, target: 7.9, want: 7},
		{name: "negative target", options: []float64{1}, target: -3, want: 3},
		{name: "canonical set", options: []float64{1, 2, 5}, target: 8, want: 3},
		{name: "non canonical set stays greedy", options: []float64{1, 3, 4}, target: 6, want: 3},
		{name: "zero option ignored", options: []float64{0, 1}, target: 2, want: 2},
		{name: "no options", options: nil, target: 5, want: 0},
		{name: "zero target", options: []float64{1, 2}, target: 0, want: 0},
		{name: "tiny option against large target saturates", options: []float64{1e-9}, target: 1e10, want: math.MaxInt},
		{name: "large target counted in one step", options: []float64{0.5}, target: 1e15, want: 2_000_000_000_000_000},
		{name: "large target mixed options", options: []float64{0.5, 2}, target: 1e9 + 0.5, want: 500_000_001},
		{name: "not a number", options: []float64{1}, target: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bw := NewBalancingWeight(tt.options, PositionRight)
			assert.Equal(t, tt.want, bw.MinimizeWeightCount(tt.target))
		})
	}
}
