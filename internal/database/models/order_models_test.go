package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineTotal(t *testing.T) {
	item := OrderItem{
		Quantity:        3,
		Price:           decimal.RequireFromString("199.99"),
		DiscountPercent: decimal.NewFromInt(15),
	}
	// 199.99 * 0.85 * 3 = 509.97450 → 509.97
	assert.True(t, item.LineTotal().Equal(decimal.RequireFromString("509.97")), item.LineTotal().String())

	noDiscount := OrderItem{Quantity: 2, Price: decimal.NewFromInt(100)}
	assert.True(t, noDiscount.LineTotal().Equal(decimal.NewFromInt(200)))
}

func TestSessionLive(t *testing.T) {
	now := time.Unix(1000, 0)

	live := Session{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, live.Live(now))

	expired := Session{IsActive: true, ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.Live(now))

	revoked := Session{IsActive: false, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, revoked.Live(now))
}
