package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fimbiz-sync/internal/database/models"
)

func TestClassifyRedeliveryInsideWindow(t *testing.T) {
	base := time.Unix(1000, 0)
	history := []models.StatusHistoryEntry{
		{Status: models.StatusProcessing, ChangedAt: base.Add(-time.Hour)},
		{Status: models.StatusAwaitingPayment, ChangedAt: base},
	}

	got := Classify(models.StatusAwaitingPayment, history, models.StatusAwaitingPayment, base.Add(2*time.Second))
	assert.Equal(t, ClassDuplicate, got)

	// Window is symmetric: redelivery can carry an earlier timestamp.
	got = Classify(models.StatusAwaitingPayment, history, models.StatusAwaitingPayment, base.Add(-2*time.Second))
	assert.Equal(t, ClassDuplicate, got)
}

func TestClassifyReEntryOutsideWindow(t *testing.T) {
	base := time.Unix(1000, 0)
	history := []models.StatusHistoryEntry{
		{Status: models.StatusAwaitingPayment, ChangedAt: base},
	}

	// Same status again, but a minute later: legitimate re-entry.
	got := Classify(models.StatusAwaitingPayment, history, models.StatusAwaitingPayment, base.Add(time.Minute))
	assert.Equal(t, ClassNew, got)
}

func TestClassifyDifferentStoredStatus(t *testing.T) {
	base := time.Unix(1000, 0)
	history := []models.StatusHistoryEntry{
		{Status: models.StatusAwaitingPayment, ChangedAt: base},
		{Status: models.StatusManufacturing, ChangedAt: base.Add(time.Second)},
	}

	// History holds a matching entry inside the window, but the stored
	// status moved on, so this is not a redelivery.
	got := Classify(models.StatusManufacturing, history, models.StatusAwaitingPayment, base.Add(time.Second))
	assert.Equal(t, ClassNew, got)
}

func TestClassifyChecksMostRecentMatchingEntry(t *testing.T) {
	base := time.Unix(1000, 0)
	history := []models.StatusHistoryEntry{
		{Status: models.StatusAwaitingPayment, ChangedAt: base.Add(-time.Hour)},
		{Status: models.StatusManufacturing, ChangedAt: base.Add(-30 * time.Minute)},
		{Status: models.StatusAwaitingPayment, ChangedAt: base},
	}

	got := Classify(models.StatusAwaitingPayment, history, models.StatusAwaitingPayment, base.Add(time.Second))
	assert.Equal(t, ClassDuplicate, got)
}

func TestClassifyEmptyHistory(t *testing.T) {
	got := Classify(models.StatusProcessing, nil, models.StatusProcessing, time.Unix(1000, 0))
	assert.Equal(t, ClassNew, got)
}
