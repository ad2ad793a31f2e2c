// Package reconcile applies ERP-originated notifications to local state.
// Notifications arrive at-least-once and unordered; every entry point is
// idempotent under the dedup rule and runs inside the bounded retry loop.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/notify"
	"fimbiz-sync/internal/orderstatus"
	"fimbiz-sync/internal/store"
)

// RemoteOrderPrefix marks an order reference that carries the ERP's integer
// id instead of a local UUID.
const RemoteOrderPrefix = "FIMBIZ-"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrContractorNotFound = errors.New("contractor not found")
	ErrInvalidReference   = errors.New("invalid order reference")
)

// Result reports the outcome of a notification. Applied=false with a Reason
// is a legitimate "not applicable" outcome, not an error.
type Result struct {
	Applied bool
	Reason  string
	OrderID uuid.UUID
}

type StatusChangeNotification struct {
	OrderRef       string
	Status         string
	ChangedAt      time.Time
	Comment        string
	TrackingNumber string
	Carrier        string
	IsPriority     bool
	OrderNumber    string
	TotalAmount    *decimal.Decimal
	DeliveryType   string

	// Contractor reference, required only to materialize an order born on
	// the remote side. Zero means absent.
	RemoteContractorID int32
}

type OrderItemPayload struct {
	// Zero means the ERP did not send a nomenclature id; one is synthesized.
	NomenclatureID  int32
	Name            string
	Quantity        int32
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
}

type OrderUpdateNotification struct {
	OrderRef           string
	Status             string
	ChangedAt          time.Time
	OrderNumber        string
	DeliveryType       string
	TrackingNumber     string
	Carrier            string
	IsPriority         bool
	TotalAmount        *decimal.Decimal
	Items              []OrderItemPayload
	AttachmentURLs     []string
	InvoiceURL         string
	UpdDocumentURL     string
	RemoteContractorID int32
}

type DeleteNotification struct {
	OrderRef string
}

type CommentNotification struct {
	OrderRef   string
	ExternalID string
	Author     string
	Text       string
	CreatedAt  time.Time
}

type Reconciler struct {
	store  store.Store
	runner *Runner
	mailer notify.Mailer
	files  notify.FileStore
	log    *zap.Logger
}

func NewReconciler(st store.Store, runner *Runner, mailer notify.Mailer, files notify.FileStore, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		runner: runner,
		mailer: mailer,
		files:  files,
		log:    log,
	}
}

// orderRef is a parsed order reference: either a local UUID or a
// FIMBIZ-prefixed remote id.
type orderRef struct {
	localID  uuid.UUID
	remoteID int32
	byRemote bool
}

func ParseOrderRef(s string) (orderRef, error) {
	if id, err := uuid.Parse(s); err == nil {
		return orderRef{localID: id}, nil
	}
	if rest, ok := strings.CutPrefix(s, RemoteOrderPrefix); ok {
		n, err := strconv.ParseInt(rest, 10, 32)
		if err != nil {
			return orderRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		return orderRef{remoteID: int32(n), byRemote: true}, nil
	}
	return orderRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
}

func (r *Reconciler) loadOrder(ctx context.Context, ref orderRef) (*models.Order, error) {
	if ref.byRemote {
		return r.store.OrderByRemoteID(ctx, ref.remoteID)
	}
	return r.store.OrderByID(ctx, ref.localID)
}

// HandleStatusChange applies a remote status-change notification. A missing
// order is materialized when the payload carries a contractor reference and
// the contractor's cabinet is enabled.
func (r *Reconciler) HandleStatusChange(ctx context.Context, n StatusChangeNotification) (Result, error) {
	ref, err := ParseOrderRef(n.OrderRef)
	if err != nil {
		return Result{}, err
	}

	ev := StatusChangeEvent{
		Status:         orderstatus.FromRemote(n.Status),
		ChangedAt:      n.ChangedAt,
		Comment:        clearable(n.Comment),
		TrackingNumber: n.TrackingNumber,
		Carrier:        n.Carrier,
		IsPriority:     n.IsPriority,
		OrderNumber:    clearable(n.OrderNumber),
		TotalAmount:    n.TotalAmount,
	}

	var res Result
	err = r.runner.Run(ctx, "status change", func(ctx context.Context, prev error) error {
		if store.IsDuplicateOf(prev, store.FieldOrderNumber) {
			ev.DropDuplicateField(store.FieldOrderNumber)
		}

		order, err := r.loadOrder(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return r.materialize(ctx, &res, ref, ev, n.DeliveryType, n.RemoteContractorID, nil, nil, "", "")
		}
		if err != nil {
			return err
		}

		// Exact redelivery with no other deltas short-circuits to success.
		if Classify(order.Status, order.StatusHistory, ev.Status, ev.ChangedAt) == ClassDuplicate && ev.IsNoOp(order) {
			res = Result{Applied: true, OrderID: order.ID}
			return nil
		}

		ApplyStatusChange(order, ev)
		if err := r.store.UpdateOrder(ctx, order, false); err != nil {
			return err
		}
		res = Result{Applied: true, OrderID: order.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Applied {
		r.sendStatusMail(ctx, res.OrderID, ev.Status)
	}
	return res, nil
}

// HandleOrderUpdate applies a full remote snapshot: scalar fields, the whole
// item list (delete-all, re-insert) and the billing sub-objects.
func (r *Reconciler) HandleOrderUpdate(ctx context.Context, n OrderUpdateNotification) (Result, error) {
	ref, err := ParseOrderRef(n.OrderRef)
	if err != nil {
		return Result{}, err
	}

	ev := StatusChangeEvent{
		Status:         orderstatus.FromRemote(n.Status),
		ChangedAt:      n.ChangedAt,
		TrackingNumber: n.TrackingNumber,
		Carrier:        n.Carrier,
		IsPriority:     n.IsPriority,
		OrderNumber:    clearable(n.OrderNumber),
		TotalAmount:    n.TotalAmount,
	}
	items := buildItems(n.Items)
	attachments := r.storeAttachments(ctx, n.AttachmentURLs)

	var res Result
	err = r.runner.Run(ctx, "order update", func(ctx context.Context, prev error) error {
		if store.IsDuplicateOf(prev, store.FieldOrderNumber) {
			ev.DropDuplicateField(store.FieldOrderNumber)
		}

		order, err := r.loadOrder(ctx, ref)
		if errors.Is(err, store.ErrNotFound) {
			return r.materialize(ctx, &res, ref, ev, n.DeliveryType, n.RemoteContractorID, items, attachments, n.InvoiceURL, n.UpdDocumentURL)
		}
		if err != nil {
			return err
		}

		ApplyStatusChange(order, ev)
		order.DeliveryType = orderstatus.DeliveryFromRemote(n.DeliveryType)
		order.Items = items
		order.AttachmentURLs = attachments
		if n.TotalAmount == nil {
			order.TotalAmount = itemsTotal(items)
		}

		if err := r.applyBilling(ctx, order, n.InvoiceURL, n.UpdDocumentURL); err != nil {
			return err
		}
		if err := r.store.UpdateOrder(ctx, order, true); err != nil {
			return err
		}
		res = Result{Applied: true, OrderID: order.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// HandleDelete hard-deletes the order. Absence is a reported failure, not a
// silent success.
func (r *Reconciler) HandleDelete(ctx context.Context, n DeleteNotification) (Result, error) {
	ref, err := ParseOrderRef(n.OrderRef)
	if err != nil {
		return Result{}, err
	}

	order, err := r.loadOrder(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrOrderNotFound
	}
	if err != nil {
		return Result{}, err
	}

	if err := r.store.DeleteOrder(ctx, order.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrOrderNotFound
		}
		return Result{}, err
	}
	return Result{Applied: true, OrderID: order.ID}, nil
}

// HandleComment mirrors a remote comment, idempotent by its external id.
func (r *Reconciler) HandleComment(ctx context.Context, n CommentNotification) (Result, error) {
	if existing, err := r.store.CommentByExternalID(ctx, n.ExternalID); err == nil {
		return Result{Applied: true, OrderID: existing.OrderID}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, err
	}

	ref, err := ParseOrderRef(n.OrderRef)
	if err != nil {
		return Result{}, err
	}
	order, err := r.loadOrder(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrOrderNotFound
	}
	if err != nil {
		return Result{}, err
	}

	comment := &models.OrderComment{
		OrderID:    order.ID,
		ExternalID: n.ExternalID,
		Author:     n.Author,
		Text:       n.Text,
		CreatedAt:  n.CreatedAt,
	}
	if err := r.store.CreateComment(ctx, comment); err != nil {
		// A concurrent redelivery won the insert race; that is still success.
		if store.IsDuplicateOf(err, store.FieldCommentExternalID) {
			return Result{Applied: true, OrderID: order.ID}, nil
		}
		return Result{}, err
	}
	return Result{Applied: true, OrderID: order.ID}, nil
}

// materialize creates the shadow record for an order born on the remote
// side. A duplicate-key failure here means another writer materialized it
// first; the runner retries and the next attempt merges into the winner.
func (r *Reconciler) materialize(ctx context.Context, res *Result, ref orderRef, ev StatusChangeEvent, deliveryType string, remoteContractorID int32, items []models.OrderItem, attachments []string, invoiceURL, updDocumentURL string) error {
	if remoteContractorID == 0 {
		return ErrOrderNotFound
	}

	contractor, err := r.store.ContractorByRemoteID(ctx, remoteContractorID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrContractorNotFound
	}
	if err != nil {
		return err
	}
	if !contractor.IsCabinetEnabled {
		*res = Result{Applied: false, Reason: "contractor cabinet is disabled"}
		return nil
	}

	order := &models.Order{
		ContractorID: contractor.ID,
		DeliveryType: orderstatus.DeliveryFromRemote(deliveryType),
		Items:        items,
	}
	if ref.byRemote {
		order.ID = uuid.New()
		order.RemoteOrderID = &ref.remoteID
	} else {
		// The ERP referenced the order by our UUID; the shadow must be
		// reachable under that same id or redeliveries re-materialize it.
		order.ID = ref.localID
	}
	// Born on the remote side either way, so never a sweeper candidate.
	now := time.Now()
	order.SyncedAt = &now

	order.AttachmentURLs = attachments
	ApplyStatusChange(order, ev)
	if ev.TotalAmount == nil && len(items) > 0 {
		order.TotalAmount = itemsTotal(items)
	}

	if err := r.applyBilling(ctx, order, invoiceURL, updDocumentURL); err != nil {
		return err
	}
	if err := r.store.CreateOrder(ctx, order); err != nil {
		return err
	}
	*res = Result{Applied: true, OrderID: order.ID}
	return nil
}

// applyBilling upserts the invoice and, only when an invoice exists, the tax
// document. A tax document without an invoice violates the referential
// precondition and is skipped with a warning.
func (r *Reconciler) applyBilling(ctx context.Context, order *models.Order, invoiceURL, updDocumentURL string) error {
	if invoiceURL != "" {
		invoice := &models.Invoice{
			ID:          uuid.New(),
			OrderID:     order.ID,
			DocumentURL: invoiceURL,
		}
		if err := r.store.UpsertInvoice(ctx, invoice); err != nil {
			return err
		}
		order.InvoiceID = &invoice.ID
	}

	if updDocumentURL == "" {
		return nil
	}

	invoice, err := r.store.InvoiceByOrderID(ctx, order.ID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("tax document without invoice, skipped",
			zap.String("order_id", order.ID.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	doc := &models.TaxDocument{
		ID:          uuid.New(),
		OrderID:     order.ID,
		InvoiceID:   invoice.ID,
		DocumentURL: updDocumentURL,
	}
	if err := r.store.UpsertTaxDocument(ctx, doc); err != nil {
		return err
	}
	order.UpdDocumentID = &doc.ID
	return nil
}

func (r *Reconciler) storeAttachments(ctx context.Context, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		stored, err := r.files.Store(ctx, u)
		if err != nil {
			r.log.Warn("attachment fetch failed, keeping remote url",
				zap.String("url", u),
				zap.Error(err),
			)
			stored = u
		}
		out = append(out, stored)
	}
	return out
}

func (r *Reconciler) sendStatusMail(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) {
	order, err := r.store.OrderByID(ctx, orderID)
	if err != nil {
		return
	}
	if err := r.mailer.SendStatusChanged(ctx, order, status); err != nil {
		r.log.Warn("status mail failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

func buildItems(payload []OrderItemPayload) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(payload))
	for i, p := range payload {
		nomenclatureID := p.NomenclatureID
		if nomenclatureID == 0 {
			// Synthesized placeholder until the ERP assigns a real id.
			nomenclatureID = -int32(i + 1)
		}
		item := models.OrderItem{
			NomenclatureID:  nomenclatureID,
			Name:            p.Name,
			Quantity:        p.Quantity,
			Price:           p.Price,
			DiscountPercent: p.DiscountPercent,
		}
		item.TotalAmount = item.LineTotal()
		items = append(items, item)
	}
	return items
}

func itemsTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalAmount)
	}
	return total
}
