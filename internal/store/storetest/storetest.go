// Package storetest provides an in-memory Store for engine tests. It
// enforces the same version checks and unique constraints as the real store
// and can inject failures to exercise retry paths.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/store"
)

type Mem struct {
	mu sync.Mutex

	orders      map[uuid.UUID]*models.Order
	comments    map[string]*models.OrderComment
	invoices    map[uuid.UUID]*models.Invoice
	taxDocs     map[uuid.UUID]*models.TaxDocument
	contractors map[uuid.UUID]*models.Contractor
	shops       []models.Shop
	accounts    map[uuid.UUID]*models.Account
	sessions    map[uuid.UUID]*models.Session

	nextID int64

	// Errors to return from the next UpdateOrder calls, popped in order.
	// A nil entry means "no injected failure for that call".
	updateOrderErrs []error
}

var _ store.Store = (*Mem)(nil)

func NewMem() *Mem {
	return &Mem{
		orders:      make(map[uuid.UUID]*models.Order),
		comments:    make(map[string]*models.OrderComment),
		invoices:    make(map[uuid.UUID]*models.Invoice),
		taxDocs:     make(map[uuid.UUID]*models.TaxDocument),
		contractors: make(map[uuid.UUID]*models.Contractor),
		accounts:    make(map[uuid.UUID]*models.Account),
		sessions:    make(map[uuid.UUID]*models.Session),
	}
}

// InjectUpdateOrderErrs queues errors for upcoming UpdateOrder calls.
func (m *Mem) InjectUpdateOrderErrs(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateOrderErrs = append(m.updateOrderErrs, errs...)
}

func (m *Mem) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]models.StatusHistoryEntry(nil), o.StatusHistory...)
	cp.AttachmentURLs = append([]string(nil), o.AttachmentURLs...)
	return &cp
}

// -- Orders --

func (m *Mem) OrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *Mem) OrderByRemoteID(_ context.Context, remoteID int32) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.RemoteOrderID != nil && *o.RemoteOrderID == remoteID {
			return copyOrder(o), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Mem) orderDuplicateLocked(order *models.Order) *store.DuplicateError {
	for _, o := range m.orders {
		if o.ID == order.ID {
			continue
		}
		if order.RemoteOrderID != nil && o.RemoteOrderID != nil && *o.RemoteOrderID == *order.RemoteOrderID {
			return &store.DuplicateError{Field: store.FieldRemoteOrderID}
		}
		if order.OrderNumber != nil && o.OrderNumber != nil && *o.OrderNumber == *order.OrderNumber {
			return &store.DuplicateError{Field: store.FieldOrderNumber}
		}
	}
	return nil
}

func (m *Mem) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return &store.DuplicateError{}
	}
	if dup := m.orderDuplicateLocked(order); dup != nil {
		return dup
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	for i := range order.Items {
		order.Items[i].ID = m.nextSeq()
		order.Items[i].OrderID = order.ID
	}
	for i := range order.StatusHistory {
		order.StatusHistory[i].ID = m.nextSeq()
		order.StatusHistory[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *Mem) UpdateOrder(_ context.Context, order *models.Order, replaceItems bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.updateOrderErrs) > 0 {
		err := m.updateOrderErrs[0]
		m.updateOrderErrs = m.updateOrderErrs[1:]
		if err != nil {
			return err
		}
	}

	existing, ok := m.orders[order.ID]
	if !ok {
		return store.ErrVersionConflict
	}
	if existing.Version != order.Version {
		return store.ErrVersionConflict
	}
	if dup := m.orderDuplicateLocked(order); dup != nil {
		return dup
	}

	cp := copyOrder(order)
	cp.Version = order.Version + 1
	if !replaceItems {
		cp.Items = append([]models.OrderItem(nil), existing.Items...)
	} else {
		for i := range cp.Items {
			cp.Items[i].ID = m.nextSeq()
			cp.Items[i].OrderID = cp.ID
		}
	}
	for i := range cp.StatusHistory {
		if cp.StatusHistory[i].ID == 0 {
			cp.StatusHistory[i].ID = m.nextSeq()
			cp.StatusHistory[i].OrderID = cp.ID
		}
	}
	m.orders[order.ID] = cp
	order.Version = cp.Version
	return nil
}

func (m *Mem) DeleteOrder(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *Mem) UnsyncedOrders(_ context.Context, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.RemoteOrderID == nil && o.SyncedAt == nil {
			out = append(out, *copyOrder(o))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// -- Comments --

func (m *Mem) CommentByExternalID(_ context.Context, externalID string) (*models.OrderComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Mem) CreateComment(_ context.Context, comment *models.OrderComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[comment.ExternalID]; ok {
		return &store.DuplicateError{Field: store.FieldCommentExternalID}
	}
	comment.ID = m.nextSeq()
	cp := *comment
	m.comments[comment.ExternalID] = &cp
	return nil
}

// -- Billing documents --

func (m *Mem) InvoiceByOrderID(_ context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *Mem) UpsertInvoice(_ context.Context, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.invoices[invoice.OrderID]; ok {
		invoice.ID = existing.ID
	}
	cp := *invoice
	m.invoices[invoice.OrderID] = &cp
	return nil
}

func (m *Mem) UpsertTaxDocument(_ context.Context, doc *models.TaxDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.taxDocs[doc.OrderID]; ok {
		doc.ID = existing.ID
	}
	cp := *doc
	m.taxDocs[doc.OrderID] = &cp
	return nil
}

// -- Contractors --

func copyContractor(c *models.Contractor) *models.Contractor {
	cp := *c
	cp.Discounts = append([]models.Discount(nil), c.Discounts...)
	return &cp
}

func (m *Mem) ContractorByID(_ context.Context, id uuid.UUID) (*models.Contractor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contractors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyContractor(c), nil
}

func (m *Mem) ContractorByRemoteID(_ context.Context, remoteID int32) (*models.Contractor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contractors {
		if c.RemoteContractorID != nil && *c.RemoteContractorID == remoteID {
			return copyContractor(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Mem) UpsertContractor(_ context.Context, contractor *models.Contractor, discounts []models.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contractor.ID == uuid.Nil {
		contractor.ID = uuid.New()
	}
	if existing, ok := m.contractors[contractor.ID]; ok {
		if existing.Version != contractor.Version {
			return store.ErrVersionConflict
		}
		contractor.Version++
	}
	for i := range discounts {
		discounts[i].ID = m.nextSeq()
		discounts[i].ContractorID = contractor.ID
	}
	cp := copyContractor(contractor)
	cp.Discounts = append([]models.Discount(nil), discounts...)
	m.contractors[contractor.ID] = cp
	return nil
}

func (m *Mem) MaxSyncVersion(_ context.Context, companyID int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, c := range m.contractors {
		if c.CompanyID == companyID && c.LastSyncVersion > max {
			max = c.LastSyncVersion
		}
	}
	return max, nil
}

// -- Shops --

func (m *Mem) AddShop(shop models.Shop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shops = append(m.shops, shop)
}

func (m *Mem) ActiveShops(_ context.Context) ([]models.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Shop
	for _, s := range m.shops {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Mem) ShopByCompanyID(_ context.Context, companyID int32) (*models.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shops {
		if s.CompanyID == companyID {
			cp := s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// -- Accounts & sessions --

func (m *Mem) AddAccount(account models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := account
	m.accounts[account.ID] = &cp
}

func (m *Mem) AccountByContractorID(_ context.Context, contractorID uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ContractorID == contractorID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Mem) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Mem) SessionByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Mem) ActiveSessionsByAccount(_ context.Context, accountID uuid.UUID) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []models.Session
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.Live(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *Mem) DeactivateSessions(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *Mem) DeactivateAccountSessions(_ context.Context, accountID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}
