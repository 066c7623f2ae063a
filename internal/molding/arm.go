package molding

import (
	"fmt"
	"math"
	"slices"
)

// DefaultBalanceTolerance is the largest net torque an arm may carry and still run.
const DefaultBalanceTolerance = 0.1

// Arm is one machine sub-assembly. Mounted molds are value snapshots keyed by MoldID;
// the catalog keeps ownership of stock levels.
type Arm struct {
	ArmID           string  `json:"arm_id"`
	MountingSpots   int     `json:"mounting_spots"`
	MaxVolume       float64 `json:"max_volume"`
	WeightCapacity  float64 `json:"weight_capacity"`
	TorqueLeftSide  float64 `json:"torque_left_side"`
	TorqueRightSide float64 `json:"torque_right_side"`

	molds   []Mold
	spiders []Spider
}

func NewArm(armID string, mountingSpots int, maxVolume, weightCapacity, torqueLeft, torqueRight float64) *Arm {
	return &Arm{
		ArmID:           armID,
		MountingSpots:   mountingSpots,
		MaxVolume:       maxVolume,
		WeightCapacity:  weightCapacity,
		TorqueLeftSide:  torqueLeft,
		TorqueRightSide: torqueRight,
	}
}

func (a *Arm) MountMold(m Mold) {
	a.molds = append(a.molds, m)
}

// UnmountMold removes the last mounted mold with the given id.
func (a *Arm) UnmountMold(moldID string) bool {
	for i := len(a.molds) - 1; i >= 0; i-- {
		if a.molds[i].MoldID == moldID {
			a.molds = slices.Delete(a.molds, i, i+1)
			return true
		}
	}
	return false
}

func (a *Arm) MountSpider(s Spider) {
	a.spiders = append(a.spiders, s)
}

func (a *Arm) UnmountSpider(spiderType string) bool {
	for i := len(a.spiders) - 1; i >= 0; i-- {
		if a.spiders[i].SpiderType == spiderType {
			a.spiders = slices.Delete(a.spiders, i, i+1)
			return true
		}
	}
	return false
}

// Molds returns a copy of the mounted molds in mount order.
func (a *Arm) Molds() []Mold {
	return slices.Clone(a.molds)
}

func (a *Arm) Spiders() []Spider {
	return slices.Clone(a.spiders)
}

func (a *Arm) MoldIDs() []string {
	ids := make([]string, len(a.molds))
	for i, m := range a.molds {
		ids[i] = m.MoldID
	}
	return ids
}

// UsedVolume sums the volume of every mounted mold and spider.
func (a *Arm) UsedVolume() float64 {
	total := 0.0
	for _, m := range a.molds {
		total += m.Volume
	}
	for _, s := range a.spiders {
		total += s.Volume
	}
	return total
}

func (a *Arm) CheckSpatialConstraint() bool {
	return a.UsedVolume() <= a.MaxVolume
}

// CalculateBalanceTorque returns the net torque on the arm, positive meaning right-heavy.
// Molds are not tagged with a side: every mounted mold's torque adds to the net sum.
func (a *Arm) CalculateBalanceTorque() float64 {
	net := a.TorqueRightSide - a.TorqueLeftSide
	for _, m := range a.molds {
		net += m.CalculateTorque()
	}
	return net
}

func (a *Arm) CheckBalanceConstraint(tolerance float64) bool {
	return math.Abs(a.CalculateBalanceTorque()) <= tolerance
}

// AddBalancingWeight hangs weight on one side at the fixed unit lever arm.
// The change is permanent until an opposite weight is added.
func (a *Arm) AddBalancingWeight(weight float64, position Position) error {
	switch position {
	case PositionLeft:
		a.TorqueLeftSide += weight * DefaultWeightDistance
	case PositionRight:
		a.TorqueRightSide += weight * DefaultWeightDistance
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPosition, position)
	}
	return nil
}

// CheckTorqueBalance reports whether the baseline side torques would be within
// DefaultBalanceTolerance after applying weights. The arm is not modified.
// Any position other than left counts toward the right side.
func (a *Arm) CheckTorqueBalance(weights []BalancingWeight) bool {
	left := a.TorqueLeftSide
	right := a.TorqueRightSide
	for _, w := range weights {
		if w.Position == PositionLeft {
			left += w.Weight
		} else {
			right += w.Weight
		}
	}
	return math.Abs(right-left) <= DefaultBalanceTolerance
}

// CheckTemperatureCompatibility compares the first mounted mold against every other one.
func (a *Arm) CheckTemperatureCompatibility() bool {
	if len(a.molds) <= 1 {
		return true
	}
	anchor := a.molds[0]
	for _, m := range a.molds[1:] {
		if !anchor.CheckCompatibilityWith(m) {
			return false
		}
	}
	return true
}

// CheckDurationCompatibility compares each mounted mold with the next one.
func (a *Arm) CheckDurationCompatibility() bool {
	for i := 0; i+1 < len(a.molds); i++ {
		if !a.molds[i].CheckCompatibilityWith(a.molds[i+1]) {
			return false
		}
	}
	return true
}
