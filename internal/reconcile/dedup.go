package reconcile

import (
	"time"

	"fimbiz-sync/internal/database/models"
)

// DedupWindow separates redelivery of the same notification from a
// legitimate later re-entry into the same status. The ERP delivers
// at-least-once, so exact redeliveries arrive within a few seconds.
const DedupWindow = 5 * time.Second

type Classification int

const (
	ClassNew Classification = iota
	ClassDuplicate
)

// Classify decides whether a status-change event is a redelivery. It is a
// DUPLICATE only when the stored status already equals the new status and the
// most recent history entry with that status sits inside the dedup window.
func Classify(current models.OrderStatus, history []models.StatusHistoryEntry, newStatus models.OrderStatus, changedAt time.Time) Classification {
	if current != newStatus {
		return ClassNew
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status != newStatus {
			continue
		}
		delta := changedAt.Sub(history[i].ChangedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < DedupWindow {
			return ClassDuplicate
		}
		break
	}

	return ClassNew
}
