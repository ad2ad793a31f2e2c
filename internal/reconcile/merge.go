package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"fimbiz-sync/internal/database/models"
)

// StatusChangeEvent is an inbound status-change notification translated to
// the local vocabulary. Tracking, carrier and priority are authoritative
// remote fields: they are always overwritten, and an empty string clears.
type StatusChangeEvent struct {
	Status         models.OrderStatus
	ChangedAt      time.Time
	Comment        *string
	TrackingNumber string
	Carrier        string
	IsPriority     bool
	OrderNumber    *string
	TotalAmount    *decimal.Decimal
}

// ApplyStatusChange computes the next order state from the current one and
// the event. It appends a history entry unless the detector classifies the
// event as a redelivery; other fields merge either way. Returns whether a
// history entry was appended.
func ApplyStatusChange(order *models.Order, ev StatusChangeEvent) bool {
	appended := false
	if Classify(order.Status, order.StatusHistory, ev.Status, ev.ChangedAt) == ClassNew {
		order.StatusHistory = append(order.StatusHistory, models.StatusHistoryEntry{
			Status:    ev.Status,
			ChangedAt: ev.ChangedAt,
			Comment:   ev.Comment,
		})
		appended = true
	}

	order.Status = ev.Status
	order.TrackingNumber = clearable(ev.TrackingNumber)
	order.Carrier = clearable(ev.Carrier)
	order.IsPriority = ev.IsPriority
	if ev.OrderNumber != nil {
		order.OrderNumber = ev.OrderNumber
	}
	if ev.TotalAmount != nil {
		order.TotalAmount = *ev.TotalAmount
	}

	return appended
}

// IsNoOp reports whether the event carries nothing beyond fields the order
// already holds, so a redelivery can short-circuit without a write.
func (ev StatusChangeEvent) IsNoOp(order *models.Order) bool {
	if order.Status != ev.Status {
		return false
	}
	if !ptrEqual(order.TrackingNumber, clearable(ev.TrackingNumber)) {
		return false
	}
	if !ptrEqual(order.Carrier, clearable(ev.Carrier)) {
		return false
	}
	if order.IsPriority != ev.IsPriority {
		return false
	}
	if ev.OrderNumber != nil && !ptrEqual(order.OrderNumber, ev.OrderNumber) {
		return false
	}
	if ev.TotalAmount != nil && !order.TotalAmount.Equal(*ev.TotalAmount) {
		return false
	}
	return true
}

// DropDuplicateField removes from the event whatever secondary unique field
// the previous write attempt collided on. The rest of the update survives.
func (ev *StatusChangeEvent) DropDuplicateField(field string) {
	if field == "order_number" {
		ev.OrderNumber = nil
	}
}

func clearable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
