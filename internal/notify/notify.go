// Package notify holds the narrow interfaces for best-effort side effects.
// A failed email or attachment fetch is logged and never fails the
// reconciliation that triggered it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
)

type Mailer interface {
	SendStatusChanged(ctx context.Context, order *models.Order, status models.OrderStatus) error
}

// FileStore fetches an externally-hosted attachment and returns a locally
// resolvable URL for it.
type FileStore interface {
	Store(ctx context.Context, url string) (string, error)
}

type logMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) Mailer {
	return &logMailer{log: log}
}

func (m *logMailer) SendStatusChanged(_ context.Context, order *models.Order, status models.OrderStatus) error {
	m.log.Info("status change mail suppressed, no mailer configured",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

type passthroughFileStore struct{}

// NewPassthroughFileStore keeps attachment URLs as-is.
func NewPassthroughFileStore() FileStore {
	return passthroughFileStore{}
}

func (passthroughFileStore) Store(_ context.Context, url string) (string, error) {
	return url, nil
}
