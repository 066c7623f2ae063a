package websocket

import "time"

type MessageType string

const (
	MessageTypeMachineState MessageType = "machine_state"

	MessageTypeCycleCompleted     MessageType = "cycle_completed"
	MessageTypeCycleRejected      MessageType = "cycle_rejected"
	MessageTypeArrangementChanged MessageType = "arrangement_changed"
	MessageTypeDailyReset         MessageType = "daily_reset"

	MessageTypeOrderProgress MessageType = "order_progress"

	MessageTypeSystemStatus MessageType = "system_status"
)

// Message is the envelope for every server push. MachineID is set for machine events
// so clients can subscribe to a subset of machines.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	MachineID string      `json:"machine_id,omitempty"`
	Data      interface{} `json:"data"`
}

type MachineStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

type CycleData struct {
	CycleNumber          int    `json:"cycle_number"`
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	DailyCyclesCompleted int    `json:"daily_cycles_completed"`
	RemainingDailyCycles int    `json:"remaining_daily_cycles"`
}

type ArrangementData struct {
	Action         string  `json:"action"` // setup_loss, mount, unmount, weight
	ArmID          string  `json:"arm_id,omitempty"`
	MoldID         string  `json:"mold_id,omitempty"`
	Weight         float64 `json:"weight,omitempty"`
	Message        string  `json:"message"`
	MaxDailyCycles int     `json:"max_daily_cycles"`
}

type DailyResetData struct {
	MaxDailyCycles int `json:"max_daily_cycles"`
}

type OrderProgressData struct {
	OrderID    string         `json:"order_id"`
	Remaining  map[string]int `json:"remaining"`
	IsComplete bool           `json:"is_complete"`
}

func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewMachineMessage(msgType MessageType, machineID string, data interface{}) Message {
	msg := NewMessage(msgType, data)
	msg.MachineID = machineID
	return msg
}

func NewMachineStateMessage(machineID, newState, previousState string) Message {
	return NewMachineMessage(MessageTypeMachineState, machineID, MachineStateData{
		State:    newState,
		Previous: previousState,
	})
}

func NewCycleMessage(machineID string, data CycleData) Message {
	msgType := MessageTypeCycleCompleted
	if !data.Success {
		msgType = MessageTypeCycleRejected
	}
	return NewMachineMessage(msgType, machineID, data)
}

func NewOrderProgressMessage(orderID string, remaining map[string]int, complete bool) Message {
	return NewMessage(MessageTypeOrderProgress, OrderProgressData{
		OrderID:    orderID,
		Remaining:  remaining,
		IsComplete: complete,
	})
}
