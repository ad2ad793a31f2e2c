package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fimbiz-sync/internal/database/models"
)

type dbStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) Store {
	return &dbStore{db: db}
}

// -- Orders --

func (s *dbStore) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("status_history_entries.id ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *dbStore) OrderByRemoteID(ctx context.Context, remoteID int32) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("status_history_entries.id ASC")
		}).
		First(&order, "remote_order_id = ?", remoteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *dbStore) CreateOrder(ctx context.Context, order *models.Order) error {
	err := s.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateError{Field: s.orderDuplicateField(ctx, order)}
	}
	return err
}

func (s *dbStore) UpdateOrder(ctx context.Context, order *models.Order, replaceItems bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]interface{}{
				"contractor_id":   order.ContractorID,
				"remote_order_id": order.RemoteOrderID,
				"order_number":    order.OrderNumber,
				"status":          order.Status,
				"delivery_type":   order.DeliveryType,
				"total_amount":    order.TotalAmount,
				"tracking_number": order.TrackingNumber,
				"carrier":         order.Carrier,
				"is_priority":     order.IsPriority,
				"attachment_urls": order.AttachmentURLs,
				"invoice_id":      order.InvoiceID,
				"upd_document_id": order.UpdDocumentID,
				"synced_at":       order.SyncedAt,
				"version":         order.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if replaceItems {
			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return err
			}
			for i := range order.Items {
				order.Items[i].ID = 0
				order.Items[i].OrderID = order.ID
			}
			if len(order.Items) > 0 {
				if err := tx.Create(&order.Items).Error; err != nil {
					return err
				}
			}
		}

		for i := range order.StatusHistory {
			if order.StatusHistory[i].ID != 0 {
				continue
			}
			order.StatusHistory[i].OrderID = order.ID
			if err := tx.Create(&order.StatusHistory[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &DuplicateError{Field: s.orderDuplicateField(ctx, order)}
		}
		return err
	}

	order.Version++
	return nil
}

// orderDuplicateField figures out which unique column an insert/update
// collided on by probing for the conflicting row.
func (s *dbStore) orderDuplicateField(ctx context.Context, order *models.Order) string {
	if order.RemoteOrderID != nil {
		var n int64
		s.db.WithContext(ctx).Model(&models.Order{}).
			Where("remote_order_id = ? AND id <> ?", *order.RemoteOrderID, order.ID).
			Count(&n)
		if n > 0 {
			return FieldRemoteOrderID
		}
	}
	if order.OrderNumber != nil {
		var n int64
		s.db.WithContext(ctx).Model(&models.Order{}).
			Where("order_number = ? AND id <> ?", *order.OrderNumber, order.ID).
			Count(&n)
		if n > 0 {
			return FieldOrderNumber
		}
	}
	return ""
}

func (s *dbStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Order{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *dbStore) UnsyncedOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("remote_order_id IS NULL AND synced_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// -- Comments --

func (s *dbStore) CommentByExternalID(ctx context.Context, externalID string) (*models.OrderComment, error) {
	var comment models.OrderComment
	err := s.db.WithContext(ctx).First(&comment, "external_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &comment, nil
}

func (s *dbStore) CreateComment(ctx context.Context, comment *models.OrderComment) error {
	err := s.db.WithContext(ctx).Create(comment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateError{Field: FieldCommentExternalID}
	}
	return err
}

// -- Billing documents --

func (s *dbStore) InvoiceByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *dbStore) UpsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Invoice
		err := tx.First(&existing, "order_id = ?", invoice.OrderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(invoice).Error
		}
		if err != nil {
			return err
		}
		invoice.ID = existing.ID
		invoice.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Update("document_url", invoice.DocumentURL).Error
	})
}

func (s *dbStore) UpsertTaxDocument(ctx context.Context, doc *models.TaxDocument) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TaxDocument
		err := tx.First(&existing, "order_id = ?", doc.OrderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(doc).Error
		}
		if err != nil {
			return err
		}
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Update("document_url", doc.DocumentURL).Error
	})
}

// -- Contractors --

func (s *dbStore) ContractorByID(ctx context.Context, id uuid.UUID) (*models.Contractor, error) {
	var contractor models.Contractor
	err := s.db.WithContext(ctx).Preload("Discounts").First(&contractor, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &contractor, nil
}

func (s *dbStore) ContractorByRemoteID(ctx context.Context, remoteID int32) (*models.Contractor, error) {
	var contractor models.Contractor
	err := s.db.WithContext(ctx).Preload("Discounts").First(&contractor, "remote_contractor_id = ?", remoteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &contractor, nil
}

func (s *dbStore) UpsertContractor(ctx context.Context, contractor *models.Contractor, discounts []models.Discount) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if contractor.ID == uuid.Nil {
			contractor.ID = uuid.New()
		}

		var existing models.Contractor
		err := tx.First(&existing, "id = ?", contractor.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Discounts").Create(contractor).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			res := tx.Model(&models.Contractor{}).
				Where("id = ? AND version = ?", contractor.ID, contractor.Version).
				Updates(map[string]interface{}{
					"remote_contractor_id": contractor.RemoteContractorID,
					"company_id":           contractor.CompanyID,
					"organization_id":      contractor.OrganizationID,
					"name":                 contractor.Name,
					"tax_number":           contractor.TaxNumber,
					"last_sync_version":    contractor.LastSyncVersion,
					"is_cabinet_enabled":   contractor.IsCabinetEnabled,
					"version":              contractor.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
			contractor.Version++
		}

		// Rule ids are not stable across feed events, so the whole set is
		// replaced instead of diffed.
		if err := tx.Where("contractor_id = ?", contractor.ID).Delete(&models.Discount{}).Error; err != nil {
			return err
		}
		for i := range discounts {
			discounts[i].ID = 0
			discounts[i].ContractorID = contractor.ID
		}
		if len(discounts) > 0 {
			if err := tx.Create(&discounts).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateError{Field: FieldRemoteContractor}
	}
	return err
}

func (s *dbStore) MaxSyncVersion(ctx context.Context, companyID int32) (int64, error) {
	var version int64
	err := s.db.WithContext(ctx).Model(&models.Contractor{}).
		Where("company_id = ?", companyID).
		Select("COALESCE(MAX(last_sync_version), 0)").
		Scan(&version).Error
	return version, err
}

// -- Shops --

func (s *dbStore) ActiveShops(ctx context.Context) ([]models.Shop, error) {
	var shops []models.Shop
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&shops).Error
	return shops, err
}

func (s *dbStore) ShopByCompanyID(ctx context.Context, companyID int32) (*models.Shop, error) {
	var shop models.Shop
	err := s.db.WithContext(ctx).First(&shop, "company_id = ?", companyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &shop, nil
}

// -- Accounts & sessions --

func (s *dbStore) AccountByContractorID(ctx context.Context, contractorID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "contractor_id = ?", contractorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *dbStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *dbStore) SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *dbStore) ActiveSessionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND is_active = ? AND expires_at > ?", accountID, true, time.Now()).
		Find(&sessions).Error
	return sessions, err
}

func (s *dbStore) DeactivateSessions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (s *dbStore) DeactivateAccountSessions(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
