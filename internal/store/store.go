// Package store is the only shared mutable resource in the system. All
// cross-task coordination happens through its optimistic version checks and
// unique constraints; there is no in-process locking anywhere above it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fimbiz-sync/internal/database/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Unique fields a write can collide on.
const (
	FieldRemoteOrderID     = "remote_order_id"
	FieldOrderNumber       = "order_number"
	FieldCommentExternalID = "external_id"
	FieldRemoteContractor  = "remote_contractor_id"
)

// DuplicateError reports a unique-constraint collision. Field names which
// key collided so the caller can drop it and retry, or is empty when the
// column could not be determined.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate key on %s", e.Field)
}

// IsDuplicateOf reports whether err is a duplicate-key error on field.
func IsDuplicateOf(err error, field string) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Field == field
}

type Store interface {
	// Orders. UpdateOrder applies an optimistic version check, bumps the
	// version, appends any history entries with a zero id, and replaces the
	// item list wholesale when replaceItems is set.
	OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderByRemoteID(ctx context.Context, remoteID int32) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order, replaceItems bool) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	UnsyncedOrders(ctx context.Context, limit int) ([]models.Order, error)

	// Comments, idempotent by external id.
	CommentByExternalID(ctx context.Context, externalID string) (*models.OrderComment, error)
	CreateComment(ctx context.Context, comment *models.OrderComment) error

	// Billing documents.
	InvoiceByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) error
	UpsertTaxDocument(ctx context.Context, doc *models.TaxDocument) error

	// Contractors and their discount rules. UpsertContractor replaces the
	// discount set wholesale in the same transaction.
	ContractorByID(ctx context.Context, id uuid.UUID) (*models.Contractor, error)
	ContractorByRemoteID(ctx context.Context, remoteID int32) (*models.Contractor, error)
	UpsertContractor(ctx context.Context, contractor *models.Contractor, discounts []models.Discount) error
	MaxSyncVersion(ctx context.Context, companyID int32) (int64, error)

	// Shops.
	ActiveShops(ctx context.Context) ([]models.Shop, error)
	ShopByCompanyID(ctx context.Context, companyID int32) (*models.Shop, error)

	// Accounts and sessions.
	AccountByContractorID(ctx context.Context, contractorID uuid.UUID) (*models.Account, error)
	CreateSession(ctx context.Context, session *models.Session) error
	SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ActiveSessionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Session, error)
	DeactivateSessions(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeactivateAccountSessions(ctx context.Context, accountID uuid.UUID) (int64, error)
}
