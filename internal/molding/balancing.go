package molding

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Position is the side of an arm a counterweight hangs on.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// DefaultWeightDistance is the fixed lever arm (m) of a counterweight slot.
const DefaultWeightDistance = 1.0

var ErrInvalidPosition = errors.New("invalid balancing position")

// ParsePosition accepts "left" or "right".
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case PositionLeft, PositionRight:
		return Position(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
}

// BalancingWeight models one counterweight slot with a discrete set of permissible
// weights. Weight is either 0 or one of WeightOptions.
type BalancingWeight struct {
	WeightOptions []float64 `json:"weight_options"`
	Position      Position  `json:"position"`
	Weight        float64   `json:"weight"`
}

// WeightPlacement is one counterweight chosen by CalculateOptimalWeights.
type WeightPlacement struct {
	Weight   float64  `json:"weight"`
	Position Position `json:"position"`
}

func NewBalancingWeight(options []float64, position Position) *BalancingWeight {
	return &BalancingWeight{
		WeightOptions: slices.Clone(options),
		Position:      position,
	}
}

// ApplyWeight sets the applied weight if value is one of the options.
func (b *BalancingWeight) ApplyWeight(value float64) bool {
	if !slices.Contains(b.WeightOptions, value) {
		return false
	}
	b.Weight = value
	return true
}

func (b *BalancingWeight) CalculateBalanceContribution(distanceFromCenter float64) float64 {
	return b.Weight * distanceFromCenter
}

// CalculateOptimalWeights walks positions once, in order, and for each picks the
// largest option that still fits in the remaining |targetTorque|. Each position gets
// at most one weight. This is a single-pass greedy heuristic: the result may fall
// short of the target.
func (b *BalancingWeight) CalculateOptimalWeights(targetTorque float64, positions []Position) []WeightPlacement {
	plan := make([]WeightPlacement, 0, len(positions))
	remaining := math.Abs(targetTorque)
	options := descending(b.WeightOptions)

	for _, pos := range positions {
		for _, w := range options {
			if w <= remaining {
				plan = append(plan, WeightPlacement{Weight: w, Position: pos})
				remaining -= w
				break
			}
		}
	}
	return plan
}

// MinimizeWeightCount counts the weights a greedy coin-change pass uses to cover
// |targetTorque|, taking each option as often as it fits. The count is only minimal
// for canonical option sets. Options that are not positive are skipped, and a count
// too large for an int saturates at math.MaxInt.
func (b *BalancingWeight) MinimizeWeightCount(targetTorque float64) int {
	remaining := math.Abs(targetTorque)
	if math.IsNaN(remaining) {
		return 0
	}

	count := 0
	for _, w := range descending(b.WeightOptions) {
		if !(w > 0) || w > remaining {
			continue
		}
		n := math.Floor(remaining / w)
		if n >= float64(math.MaxInt-count) {
			return math.MaxInt
		}
		count += int(n)
		remaining = math.Max(0, remaining-n*w)
	}
	return count
}

func descending(values []float64) []float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	slices.Reverse(sorted)
	return sorted
}
