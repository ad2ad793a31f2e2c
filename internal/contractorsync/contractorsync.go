// Package contractorsync keeps the contractor and discount mirrors current:
// a bootstrap full sync per shop, then a long-lived change-feed subscription
// resumed from the stored version cursor.
package contractorsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/ident"
	"fimbiz-sync/internal/reconcile"
	"fimbiz-sync/internal/store"
)

const bootstrapPageSize = 100

type SessionRevoker interface {
	RevokeContractor(ctx context.Context, contractorID uuid.UUID) (int64, error)
}

type Syncer struct {
	store   store.Store
	pool    *erp.Pool
	runner  *reconcile.Runner
	revoker SessionRevoker
	backoff time.Duration
	log     *zap.Logger
}

func NewSyncer(st store.Store, pool *erp.Pool, runner *reconcile.Runner, revoker SessionRevoker, backoff time.Duration, log *zap.Logger) *Syncer {
	return &Syncer{
		store:   st,
		pool:    pool,
		runner:  runner,
		revoker: revoker,
		backoff: backoff,
		log:     log,
	}
}

// Bootstrap pages through every active shop's contractors and upserts each
// one from its full detail. The paged summary does not reliably carry the
// discount rules, so each contractor is re-fetched individually.
func (s *Syncer) Bootstrap(ctx context.Context) error {
	shops, err := s.store.ActiveShops(ctx)
	if err != nil {
		return err
	}
	for _, shop := range shops {
		if err := s.bootstrapShop(ctx, shop); err != nil {
			s.log.Error("contractor bootstrap failed for shop",
				zap.String("shop", shop.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Syncer) bootstrapShop(ctx context.Context, shop models.Shop) error {
	client := s.pool.ForShop(&shop)

	for page := 1; ; page++ {
		pg, err := client.GetContractors(ctx, shop.CompanyID, shop.OrganizationID, page, bootstrapPageSize)
		if err != nil {
			return err
		}

		for _, summary := range pg.Contractors {
			detail, err := client.GetContractor(ctx, summary.ID)
			if err != nil {
				s.log.Warn("contractor detail fetch failed, skipped",
					zap.Int32("remote_id", summary.ID),
					zap.Error(err),
				)
				continue
			}
			if err := s.Apply(ctx, shop, detail, 0); err != nil {
				s.log.Warn("contractor upsert failed",
					zap.Int32("remote_id", detail.ID),
					zap.Error(err),
				)
			}
		}

		if len(pg.Contractors) < bootstrapPageSize {
			return nil
		}
	}
}

// Apply upserts one contractor mirror. A brand-new mirror gets its UUID from
// the identifier mapper, so both sync paths agree on shadow identity. When
// the cabinet flag flips enabled→disabled, every active session of the
// contractor's account is force-expired.
func (s *Syncer) Apply(ctx context.Context, shop models.Shop, wire erp.ContractorWire, feedVersion int64) error {
	discounts := s.discountsFromWire(wire)

	return s.runner.Run(ctx, "contractor upsert", func(ctx context.Context, _ error) error {
		var contractor *models.Contractor
		wasEnabled := false

		existing, err := s.store.ContractorByRemoteID(ctx, wire.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			remoteID := wire.ID
			contractor = &models.Contractor{
				ID:                 ident.ToLocal(wire.ID),
				RemoteContractorID: &remoteID,
				CompanyID:          shop.CompanyID,
				OrganizationID:     shop.OrganizationID,
			}
		case err != nil:
			return err
		default:
			contractor = existing
			wasEnabled = existing.IsCabinetEnabled
		}

		contractor.Name = wire.Name
		contractor.TaxNumber = wire.TaxNumber
		contractor.IsCabinetEnabled = wire.IsCabinetEnabled
		if feedVersion > contractor.LastSyncVersion {
			contractor.LastSyncVersion = feedVersion
		}

		if err := s.store.UpsertContractor(ctx, contractor, discounts); err != nil {
			return err
		}

		if wasEnabled && !contractor.IsCabinetEnabled {
			n, err := s.revoker.RevokeContractor(ctx, contractor.ID)
			if err != nil {
				return err
			}
			s.log.Info("cabinet disabled, sessions revoked",
				zap.String("contractor_id", contractor.ID.String()),
				zap.Int64("sessions", n),
			)
		}
		return nil
	})
}

// RunFeed is the per-shop subscription loop. It resumes from the stored
// maximum version, reconnects after a fixed backoff on any disconnect, and
// only ends when the context is cancelled.
func (s *Syncer) RunFeed(ctx context.Context, shop models.Shop) {
	for {
		if ctx.Err() != nil {
			return
		}

		since, err := s.store.MaxSyncVersion(ctx, shop.CompanyID)
		if err != nil {
			s.log.Error("feed: reading resume cursor failed",
				zap.String("shop", shop.Name),
				zap.Error(err),
			)
		} else {
			client := s.pool.ForShop(&shop)
			err = client.SubscribeToChanges(ctx, shop.CompanyID, shop.OrganizationID, since, func(event erp.ChangeEvent) error {
				return s.Apply(ctx, shop, event.Contractor, event.Version)
			})
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("feed disconnected, reconnecting",
				zap.String("shop", shop.Name),
				zap.Duration("backoff", s.backoff),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
	}
}

// discountsFromWire converts the rule set, dropping malformed rules: a rule
// scoped to both an item and a group violates the scope exclusivity.
func (s *Syncer) discountsFromWire(wire erp.ContractorWire) []models.Discount {
	discounts := make([]models.Discount, 0, len(wire.Discounts))
	for _, d := range wire.Discounts {
		if d.NomenclatureID != nil && d.NomenclatureGroupID != nil {
			s.log.Warn("discount scoped to both item and group, skipped",
				zap.Int32("contractor", wire.ID),
			)
			continue
		}
		percent, err := decimal.NewFromString(d.Percent)
		if err != nil {
			s.log.Warn("unparseable discount percent, skipped",
				zap.Int32("contractor", wire.ID),
				zap.String("percent", d.Percent),
			)
			continue
		}

		discount := models.Discount{
			NomenclatureID:      d.NomenclatureID,
			NomenclatureGroupID: d.NomenclatureGroupID,
			Percent:             percent,
			ValidFrom:           erp.FromUnix(d.ValidFrom),
		}
		if d.ValidTo != 0 {
			validTo := erp.FromUnix(d.ValidTo)
			discount.ValidTo = &validTo
		}
		discounts = append(discounts, discount)
	}
	return discounts
}
