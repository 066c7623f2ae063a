package molding

import (
	"maps"
	"time"
)

// Order tracks production toward a per-mold quantity requirement. It does not look
// at machine state; callers credit it as cycles produce parts.
type Order struct {
	OrderID          string         `json:"order_id"`
	MoldRequirements map[string]int `json:"mold_requirements"`
	Deadline         time.Time      `json:"deadline"`
	CompletionStatus map[string]int `json:"completion_status"`
	IsComplete       bool           `json:"is_complete"`
}

func NewOrder(orderID string, requirements map[string]int, deadline time.Time) *Order {
	return &Order{
		OrderID:          orderID,
		MoldRequirements: maps.Clone(requirements),
		Deadline:         deadline,
		CompletionStatus: make(map[string]int),
	}
}

// UpdateProgress adds quantityProduced to the tally for moldID. Tallies of required
// molds are clamped to the requirement; surplus is dropped.
func (o *Order) UpdateProgress(moldID string, quantityProduced int) {
	if o.CompletionStatus == nil {
		o.CompletionStatus = make(map[string]int)
	}
	o.CompletionStatus[moldID] += quantityProduced

	if required, ok := o.MoldRequirements[moldID]; ok && o.CompletionStatus[moldID] >= required {
		o.CompletionStatus[moldID] = required
	}
}

// CheckCompletion refreshes and returns IsComplete.
func (o *Order) CheckCompletion() bool {
	o.IsComplete = o.fulfilled()
	return o.IsComplete
}

func (o *Order) fulfilled() bool {
	for moldID, required := range o.MoldRequirements {
		if o.CompletionStatus[moldID] < required {
			return false
		}
	}
	return true
}

// Remaining returns the outstanding quantity per required mold.
func (o *Order) Remaining() map[string]int {
	out := make(map[string]int, len(o.MoldRequirements))
	for moldID, required := range o.MoldRequirements {
		out[moldID] = max(0, required-o.CompletionStatus[moldID])
	}
	return out
}

func (o *Order) IsOverdue(now time.Time) bool {
	return !o.Deadline.IsZero() && now.After(o.Deadline) && !o.fulfilled()
}
