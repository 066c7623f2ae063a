package molding

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balancedArm(id string) *Arm {
	arm := NewArm(id, 4, 10, 100, 2.5, 0)
	arm.MountMold(testMold("M-"+id, 200, 3))
	return arm
}

func TestRTXMachine_Defaults(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)

	assert.Equal(t, DefaultMaxDailyCycles, m.MaxDailyCycles)
	assert.Zero(t, m.CurrentCycle)
	assert.Zero(t, m.DailyCyclesCompleted)
	assert.Equal(t, 7, m.RemainingDailyCycles())

	ok, msg := m.ValidateArrangement()
	assert.True(t, ok, "machine without arms is valid")
	assert.Equal(t, "All constraints satisfied", msg)
}

func TestRTXMachine_ExecuteCycle_DailyQuota(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)
	m.AddArm(balancedArm("A1"))

	for i := 1; i <= 7; i++ {
		ok, msg := m.ExecuteCycle()
		require.True(t, ok, msg)
		assert.Equal(t, fmt.Sprintf("Cycle %d completed successfully", i), msg)
	}

	ok, msg := m.ExecuteCycle()
	assert.False(t, ok)
	assert.Equal(t, "Daily cycle limit reached", msg)
	assert.Equal(t, 7, m.CurrentCycle, "rejected cycle does not advance the counter")
	assert.Equal(t, 7, m.DailyCyclesCompleted)
	assert.Zero(t, m.RemainingDailyCycles())
}

func TestRTXMachine_ValidateArrangement_Order(t *testing.T) {
	tests := []struct {
		name  string
		build func() *RTXMachine
		want  string
	}{
		{
			name: "spatial before balance",
			build: func() *RTXMachine {
				m := NewRTXMachine("RTX-1", 1)
				arm := NewArm("A1", 4, 0.5, 100, 0, 0)
				arm.MountMold(testMold("M1", 200, 3))
				m.AddArm(arm)
				return m
			},
			want: "Spatial constraint violated on arm A1",
		},
		{
			name: "balance on second arm",
			build: func() *RTXMachine {
				m := NewRTXMachine("RTX-1", 1)
				m.AddArm(balancedArm("A1"))
				m.AddArm(NewArm("A2", 4, 10, 100, 0, 1))
				return m
			},
			want: "Balance constraint violated on arm A2",
		},
		{
			name: "temperature before duration",
			build: func() *RTXMachine {
				m := NewRTXMachine("RTX-1", 1)
				arm := NewArm("A1", 4, 10, 100, 5, 0)
				arm.MountMold(testMold("M1", 200, 3))
				arm.MountMold(testMold("M2", 270, 10))
				m.AddArm(arm)
				return m
			},
			want: "Temperature compatibility failed on arm A1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.build()
			ok, msg := m.ValidateArrangement()
			assert.False(t, ok)
			assert.Equal(t, tt.want, msg)

			ok, msg = m.ExecuteCycle()
			assert.False(t, ok)
			assert.Equal(t, tt.want, msg)
			assert.Zero(t, m.CurrentCycle)
		})
	}
}

func TestRTXMachine_ExecuteCycle_ValidationBeforeQuota(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)
	m.AddArm(NewArm("A1", 4, 10, 100, 0, 1))
	m.DailyCyclesCompleted = m.MaxDailyCycles

	ok, msg := m.ExecuteCycle()
	assert.False(t, ok)
	assert.Equal(t, "Balance constraint violated on arm A1", msg)
}

func TestRTXMachine_ChangeArrangement(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)

	assert.Equal(t, "Arrangement changed, 3 cycles lost to setup", m.ChangeArrangement(3))
	assert.Equal(t, 4, m.MaxDailyCycles)

	assert.Equal(t, "Arrangement changed, 10 cycles lost to setup", m.ChangeArrangement(10))
	assert.Zero(t, m.MaxDailyCycles, "quota floors at zero")

	m.MaxDailyCycles = 5
	assert.Equal(t, "Arrangement changed, 0 cycles lost to setup", m.ChangeArrangement(-2))
	assert.Equal(t, 5, m.MaxDailyCycles)
}

func TestRTXMachine_ChangeArrangement_BlocksCycles(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)
	m.AddArm(balancedArm("A1"))
	m.ChangeArrangement(5)

	for range 2 {
		ok, _ := m.ExecuteCycle()
		require.True(t, ok)
	}
	ok, msg := m.ExecuteCycle()
	assert.False(t, ok)
	assert.Equal(t, "Daily cycle limit reached", msg)
}

func TestRTXMachine_Arm(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)
	m.AddArm(balancedArm("A1"))

	arm, ok := m.Arm("A1")
	require.True(t, ok)
	assert.Equal(t, "A1", arm.ArmID)

	_, ok = m.Arm("A9")
	assert.False(t, ok)
}

func TestRTXMachine_InspectArrangement(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)

	good := balancedArm("A1")
	m.AddArm(good)

	bad := NewArm("A2", 4, 0.5, 1, 0, 1)
	bad.MountMold(testMold("M1", 200, 3))
	bad.MountMold(testMold("M2", 270, 10))
	m.AddArm(bad)
	m.DailyCyclesCompleted = m.MaxDailyCycles

	rep := m.InspectArrangement()
	assert.False(t, rep.Valid)
	assert.Equal(t, "RTX-1", rep.MachineID)

	codes := make([]string, 0, len(rep.Errors))
	for _, issue := range rep.Errors {
		assert.Equal(t, "A2", issue.ArmID)
		assert.Equal(t, SevError, issue.Severity)
		codes = append(codes, issue.Code)
	}
	assert.Equal(t, []string{CodeSpatial, CodeBalance, CodeTemperature, CodeDuration}, codes)

	require.Len(t, rep.Warnings, 2)
	assert.Equal(t, CodeOverweight, rep.Warnings[0].Code)
	assert.Equal(t, 10.0, rep.Warnings[0].Meta["load"])
	assert.Equal(t, CodeNoQuota, rep.Warnings[1].Code)
	assert.Equal(t, "Daily cycle limit reached", rep.Warnings[1].Message)

	ok, msg := m.ValidateArrangement()
	assert.False(t, ok)
	assert.Equal(t, rep.Errors[0].Message, msg, "first error matches the short-circuit result")
}

func TestRTXMachine_InspectArrangement_Clean(t *testing.T) {
	m := NewRTXMachine("RTX-1", 1)
	m.AddArm(balancedArm("A1"))

	rep := m.InspectArrangement()
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Errors)
	assert.Empty(t, rep.Warnings)
	assert.NotNil(t, rep.Errors)
}
