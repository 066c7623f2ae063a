package molding

import (
	"fmt"
	"math"
)

type Severity string

const (
	SevError   Severity = "error"
	SevWarning Severity = "warning"
)

// Issue codes reported by InspectArrangement.
const (
	CodeSpatial     = "ARM_010"
	CodeBalance     = "ARM_020"
	CodeTemperature = "ARM_030"
	CodeDuration    = "ARM_040"
	CodeOverweight  = "ARM_050"
	CodeNoQuota     = "MACHINE_010"
)

type Issue struct {
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	ArmID    string         `json:"arm_id,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// ValidationReport lists every violation found on a machine, unlike
// ValidateArrangement which stops at the first one.
type ValidationReport struct {
	MachineID string  `json:"machine_id"`
	Valid     bool    `json:"valid"`
	Errors    []Issue `json:"errors"`
	Warnings  []Issue `json:"warnings"`
}

func (r *ValidationReport) add(issue Issue) {
	if issue.Severity == SevWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	r.Errors = append(r.Errors, issue)
}

// InspectArrangement runs the same four arm checks as ValidateArrangement on every arm
// without short-circuiting. Exceeding an arm's weight capacity and an exhausted daily
// quota are reported as warnings; they do not make the report invalid.
func (m *RTXMachine) InspectArrangement() ValidationReport {
	rep := ValidationReport{
		MachineID: m.MachineID,
		Errors:    make([]Issue, 0),
		Warnings:  make([]Issue, 0),
	}

	for _, arm := range m.Arms {
		if !arm.CheckSpatialConstraint() {
			rep.add(Issue{
				Code:     CodeSpatial,
				Severity: SevError,
				Message:  fmt.Sprintf(msgSpatialFailed, arm.ArmID),
				ArmID:    arm.ArmID,
				Meta:     map[string]any{"used_volume": arm.UsedVolume(), "max_volume": arm.MaxVolume},
			})
		}
		if !arm.CheckBalanceConstraint(DefaultBalanceTolerance) {
			rep.add(Issue{
				Code:     CodeBalance,
				Severity: SevError,
				Message:  fmt.Sprintf(msgBalanceFailed, arm.ArmID),
				ArmID:    arm.ArmID,
				Meta:     map[string]any{"net_torque": arm.CalculateBalanceTorque(), "tolerance": DefaultBalanceTolerance},
			})
		}
		if !arm.CheckTemperatureCompatibility() {
			rep.add(Issue{
				Code:     CodeTemperature,
				Severity: SevError,
				Message:  fmt.Sprintf(msgTempFailed, arm.ArmID),
				ArmID:    arm.ArmID,
			})
		}
		if !arm.CheckDurationCompatibility() {
			rep.add(Issue{
				Code:     CodeDuration,
				Severity: SevError,
				Message:  fmt.Sprintf(msgDurationFailed, arm.ArmID),
				ArmID:    arm.ArmID,
			})
		}
		if load := mountedWeight(arm); arm.WeightCapacity > 0 && load > arm.WeightCapacity {
			rep.add(Issue{
				Code:     CodeOverweight,
				Severity: SevWarning,
				Message:  fmt.Sprintf("Mounted weight exceeds capacity on arm %s", arm.ArmID),
				ArmID:    arm.ArmID,
				Meta:     map[string]any{"load": load, "capacity": arm.WeightCapacity},
			})
		}
	}

	if m.DailyCyclesCompleted >= m.MaxDailyCycles {
		rep.add(Issue{
			Code:     CodeNoQuota,
			Severity: SevWarning,
			Message:  MsgDailyLimit,
		})
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}

func mountedWeight(arm *Arm) float64 {
	total := 0.0
	for _, m := range arm.molds {
		total += m.Weight
	}
	for _, s := range arm.spiders {
		total += s.Weight
	}
	return math.Round(total*1000) / 1000
}
