// Package outbound pushes locally-originated writes to the ERP: new orders
// at checkout (or later, via the sweeper) and local status changes.
package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/orderstatus"
	"fimbiz-sync/internal/reconcile"
	"fimbiz-sync/internal/store"
)

var (
	// ErrAlreadySynced: a second push for a synced order is a caller error.
	ErrAlreadySynced = errors.New("order already pushed")
	// ErrContractorNotSynced: the owning contractor has no remote id yet.
	ErrContractorNotSynced = errors.New("contractor has no remote id")
	// ErrCancelNotAllowed: local cancellation is a shop business rule
	// restricted to Processing and AwaitingPayment.
	ErrCancelNotAllowed = errors.New("order can no longer be cancelled locally")
)

type Pusher struct {
	store  store.Store
	pool   *erp.Pool
	runner *reconcile.Runner
	log    *zap.Logger
}

func NewPusher(st store.Store, pool *erp.Pool, runner *reconcile.Runner, log *zap.Logger) *Pusher {
	return &Pusher{store: st, pool: pool, runner: runner, log: log}
}

func (p *Pusher) clientFor(ctx context.Context, companyID int32) *erp.Client {
	shop, err := p.store.ShopByCompanyID(ctx, companyID)
	if err != nil {
		return p.pool.ForShop(nil)
	}
	return p.pool.ForShop(shop)
}

// Push creates the order on the remote side and records the returned remote
// id and order number. Transient failures are returned to the caller; the
// sweeper re-drives them on its next pass.
func (p *Pusher) Push(ctx context.Context, orderID uuid.UUID) error {
	order, err := p.store.OrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RemoteOrderID != nil {
		return ErrAlreadySynced
	}

	contractor, err := p.store.ContractorByID(ctx, order.ContractorID)
	if err != nil {
		return err
	}
	if contractor.RemoteContractorID == nil {
		return ErrContractorNotSynced
	}

	req := p.buildCreateRequest(order, *contractor.RemoteContractorID)
	resp, err := p.clientFor(ctx, contractor.CompanyID).CreateOrder(ctx, req)
	if err != nil {
		return err
	}

	return p.runner.Run(ctx, "record pushed order", func(ctx context.Context, prev error) error {
		fresh, err := p.store.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		fresh.RemoteOrderID = &resp.OrderID
		if resp.OrderNumber != "" && !store.IsDuplicateOf(prev, store.FieldOrderNumber) {
			number := resp.OrderNumber
			fresh.OrderNumber = &number
		}
		now := time.Now()
		fresh.SyncedAt = &now
		return p.store.UpdateOrder(ctx, fresh, false)
	})
}

// buildCreateRequest translates the loaded order to the wire form. An item
// without a mappable nomenclature id is still sent, just without that field;
// that is a data-quality signal, not a failure.
func (p *Pusher) buildCreateRequest(order *models.Order, remoteContractorID int32) erp.CreateOrderRequest {
	items := make([]erp.OrderItemWire, 0, len(order.Items))
	for _, item := range order.Items {
		wire := erp.OrderItemWire{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    erp.ToMinorUnits(item.Price),
			Discount: item.DiscountPercent.String(),
		}
		if item.NomenclatureID > 0 {
			id := item.NomenclatureID
			wire.NomenclatureID = &id
		} else {
			p.log.Warn("order item has no remote nomenclature id",
				zap.String("order_id", order.ID.String()),
				zap.String("item", item.Name),
			)
		}
		items = append(items, wire)
	}

	return erp.CreateOrderRequest{
		ExternalID:     order.ID.String(),
		ContractorID:   remoteContractorID,
		DeliveryType:   orderstatus.DeliveryToRemote(order.DeliveryType),
		TotalAmount:    erp.ToMinorUnits(order.TotalAmount),
		Items:          items,
		AttachmentURLs: order.AttachmentURLs,
	}
}

// Cancel is the locally-initiated cancellation: allowed only while the order
// is still in Processing or AwaitingPayment, applied locally first, then
// pushed to the ERP when the order is already synced.
func (p *Pusher) Cancel(ctx context.Context, orderID uuid.UUID, comment string) error {
	var remoteID *int32
	var companyID int32

	err := p.runner.Run(ctx, "local cancel", func(ctx context.Context, _ error) error {
		order, err := p.store.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.StatusCancelled {
			remoteID = nil // already cancelled, nothing to push
			return nil
		}
		if !orderstatus.CanCancelLocally(order.Status) {
			return ErrCancelNotAllowed
		}

		entry := models.StatusHistoryEntry{
			Status:    models.StatusCancelled,
			ChangedAt: time.Now(),
		}
		if comment != "" {
			entry.Comment = &comment
		}
		order.Status = models.StatusCancelled
		order.StatusHistory = append(order.StatusHistory, entry)

		remoteID = order.RemoteOrderID
		contractor, err := p.store.ContractorByID(ctx, order.ContractorID)
		if err == nil {
			companyID = contractor.CompanyID
		}
		return p.store.UpdateOrder(ctx, order, false)
	})
	if err != nil {
		return err
	}

	if remoteID == nil {
		return nil
	}
	return p.clientFor(ctx, companyID).UpdateOrderStatus(ctx, *remoteID, orderstatus.ToRemote(models.StatusCancelled))
}
