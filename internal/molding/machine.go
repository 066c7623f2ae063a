package molding

import "fmt"

// DefaultMaxDailyCycles is the quota a freshly initialized machine starts with.
const DefaultMaxDailyCycles = 7

const (
	msgAllSatisfied    = "All constraints satisfied"
	// MsgDailyLimit is the rejection message when the daily quota is exhausted.
	MsgDailyLimit      = "Daily cycle limit reached"
	msgSpatialFailed   = "Spatial constraint violated on arm %s"
	msgBalanceFailed   = "Balance constraint violated on arm %s"
	msgTempFailed      = "Temperature compatibility failed on arm %s"
	msgDurationFailed  = "Duration compatibility failed on arm %s"
	msgCycleCompleted  = "Cycle %d completed successfully"
	msgArrangementLoss = "Arrangement changed, %d cycles lost to setup"
)

// RTXMachine is a rotational-molding machine made of arms. It gates cycle execution
// on arrangement validity and a daily quota. Not safe for concurrent use.
//
// DailyCyclesCompleted is never reset here; the owner of the day boundary does that.
type RTXMachine struct {
	MachineID            string `json:"machine_id"`
	MachineCount         int    `json:"machine_count"`
	Arms                 []*Arm `json:"-"`
	CurrentCycle         int    `json:"current_cycle"`
	DailyCyclesCompleted int    `json:"daily_cycles_completed"`
	MaxDailyCycles       int    `json:"max_daily_cycles"`
}

func NewRTXMachine(machineID string, machineCount int) *RTXMachine {
	return &RTXMachine{
		MachineID:      machineID,
		MachineCount:   machineCount,
		Arms:           make([]*Arm, 0),
		MaxDailyCycles: DefaultMaxDailyCycles,
	}
}

func (m *RTXMachine) AddArm(arm *Arm) {
	m.Arms = append(m.Arms, arm)
}

func (m *RTXMachine) Arm(armID string) (*Arm, bool) {
	for _, a := range m.Arms {
		if a.ArmID == armID {
			return a, true
		}
	}
	return nil, false
}

// ValidateArrangement checks every arm in order: spatial, balance, temperature, then
// duration. It stops at the first failure and names the arm in the message.
func (m *RTXMachine) ValidateArrangement() (bool, string) {
	for _, arm := range m.Arms {
		if !arm.CheckSpatialConstraint() {
			return false, fmt.Sprintf(msgSpatialFailed, arm.ArmID)
		}
		if !arm.CheckBalanceConstraint(DefaultBalanceTolerance) {
			return false, fmt.Sprintf(msgBalanceFailed, arm.ArmID)
		}
		if !arm.CheckTemperatureCompatibility() {
			return false, fmt.Sprintf(msgTempFailed, arm.ArmID)
		}
		if !arm.CheckDurationCompatibility() {
			return false, fmt.Sprintf(msgDurationFailed, arm.ArmID)
		}
	}
	return true, msgAllSatisfied
}

// ExecuteCycle runs one cycle. Validation failures take priority over the quota.
func (m *RTXMachine) ExecuteCycle() (bool, string) {
	if ok, msg := m.ValidateArrangement(); !ok {
		return false, msg
	}

	if m.DailyCyclesCompleted >= m.MaxDailyCycles {
		return false, MsgDailyLimit
	}

	m.CurrentCycle++
	m.DailyCyclesCompleted++
	return true, fmt.Sprintf(msgCycleCompleted, m.CurrentCycle)
}

// ChangeArrangement permanently lowers the daily quota by setupTimeLoss cycles,
// floored at zero. A negative loss is ignored.
func (m *RTXMachine) ChangeArrangement(setupTimeLoss int) string {
	lost := max(0, setupTimeLoss)
	m.MaxDailyCycles = max(0, m.MaxDailyCycles-lost)
	return fmt.Sprintf(msgArrangementLoss, lost)
}

// RemainingDailyCycles is the quota left in the current period.
func (m *RTXMachine) RemainingDailyCycles() int {
	return max(0, m.MaxDailyCycles-m.DailyCyclesCompleted)
}
