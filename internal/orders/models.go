package orders

import (
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
)

// OrderRecord is the persisted form of a molding.Order.
type OrderRecord struct {
	OrderID          string         `gorm:"column:order_id;type:text;primaryKey"`
	MoldRequirements map[string]int `gorm:"column:mold_requirements;type:jsonb;serializer:json;not null"`
	CompletionStatus map[string]int `gorm:"column:completion_status;type:jsonb;serializer:json;not null"`
	Deadline         *time.Time     `gorm:"column:deadline"`
	IsComplete       bool           `gorm:"column:is_complete;not null;default:false;index"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (OrderRecord) TableName() string { return "orders" }

func toRecord(o *molding.Order) OrderRecord {
	rec := OrderRecord{
		OrderID:          o.OrderID,
		MoldRequirements: o.MoldRequirements,
		CompletionStatus: o.CompletionStatus,
		IsComplete:       o.IsComplete,
	}
	if !o.Deadline.IsZero() {
		d := o.Deadline
		rec.Deadline = &d
	}
	return rec
}

func (r OrderRecord) toOrder() *molding.Order {
	var deadline time.Time
	if r.Deadline != nil {
		deadline = *r.Deadline
	}
	o := molding.NewOrder(r.OrderID, r.MoldRequirements, deadline)
	for moldID, qty := range r.CompletionStatus {
		o.CompletionStatus[moldID] = qty
	}
	o.IsComplete = r.IsComplete
	return o
}
