package machine

import (
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
)

// State summarizes whether a machine can run its next cycle.
type State string

const (
	StateReady              State = "ready"
	StateInvalidArrangement State = "invalid_arrangement"
	StateQuotaReached       State = "quota_reached"
)

type ArmStatus struct {
	ArmID          string   `json:"arm_id"`
	MountingSpots  int      `json:"mounting_spots"`
	MoldIDs        []string `json:"mold_ids"`
	SpiderTypes    []string `json:"spider_types"`
	UsedVolume     float64  `json:"used_volume"`
	MaxVolume      float64  `json:"max_volume"`
	NetTorque      float64  `json:"net_torque"`
	Balanced       bool     `json:"balanced"`
	TorqueLeft     float64  `json:"torque_left_side"`
	TorqueRight    float64  `json:"torque_right_side"`
	WeightCapacity float64  `json:"weight_capacity"`
}

type MachineStatus struct {
	MachineID            string      `json:"machine_id"`
	State                State       `json:"state"`
	Reason               string      `json:"reason"`
	CurrentCycle         int         `json:"current_cycle"`
	DailyCyclesCompleted int         `json:"daily_cycles_completed"`
	MaxDailyCycles       int         `json:"max_daily_cycles"`
	RemainingDailyCycles int         `json:"remaining_daily_cycles"`
	Arms                 []ArmStatus `json:"arms"`
	LastCycleAt          *time.Time  `json:"last_cycle_at,omitempty"`
	LastStateChange      time.Time   `json:"last_state_change"`
}

type CycleResult struct {
	MachineID   string   `json:"machine_id"`
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	CycleNumber int      `json:"cycle_number"`
	MoldIDs     []string `json:"mold_ids"`
	Remaining   int      `json:"remaining_daily_cycles"`
}

// BalancingPlan suggests counterweights that bring an arm toward zero net torque.
type BalancingPlan struct {
	ArmID          string                    `json:"arm_id"`
	NetTorque      float64                   `json:"net_torque"`
	CounterSide    molding.Position          `json:"counter_side,omitempty"`
	Placements     []molding.WeightPlacement `json:"placements"`
	WeightCount    int                       `json:"weight_count"`
	ResidualTorque float64                   `json:"residual_torque"`
	Balanced       bool                      `json:"balanced"`
}
