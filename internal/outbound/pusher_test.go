package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/reconcile"
	"fimbiz-sync/internal/store/storetest"
)

func newTestPusher(mem *storetest.Mem, baseURL string) *Pusher {
	log := zap.NewNop()
	pool := erp.NewPool(baseURL, "test-key", 5*time.Second, log)
	return NewPusher(mem, pool, reconcile.NewRunner(log), log)
}

func seedContractor(t *testing.T, mem *storetest.Mem, remoteID *int32) *models.Contractor {
	t.Helper()
	c := &models.Contractor{
		ID:                 uuid.New(),
		RemoteContractorID: remoteID,
		CompanyID:          1,
		Name:               "Contractor",
	}
	require.NoError(t, mem.UpsertContractor(context.Background(), c, nil))
	return c
}

func seedUnsyncedOrder(t *testing.T, mem *storetest.Mem, contractorID uuid.UUID) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:           uuid.New(),
		ContractorID: contractorID,
		Status:       models.StatusProcessing,
		DeliveryType: models.DeliveryCourier,
		TotalAmount:  decimal.NewFromInt(230),
		Items: []models.OrderItem{
			{NomenclatureID: 5, Name: "widget", Quantity: 2, Price: decimal.NewFromInt(100), DiscountPercent: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(180)},
			{NomenclatureID: -1, Name: "custom part", Quantity: 1, Price: decimal.NewFromInt(50), TotalAmount: decimal.NewFromInt(50)},
		},
		StatusHistory: []models.StatusHistoryEntry{
			{Status: models.StatusProcessing, ChangedAt: time.Unix(100, 0)},
		},
	}
	require.NoError(t, mem.CreateOrder(context.Background(), order))
	return order
}

func TestPushRecordsRemoteIdentity(t *testing.T) {
	var captured erp.CreateOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/orders", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(erp.CreateOrderResponse{OrderID: 42, OrderNumber: "N-42"})
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	remoteID := int32(7)
	contractor := seedContractor(t, mem, &remoteID)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	p := newTestPusher(mem, srv.URL)
	require.NoError(t, p.Push(context.Background(), order.ID))

	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RemoteOrderID)
	assert.Equal(t, int32(42), *got.RemoteOrderID)
	require.NotNil(t, got.OrderNumber)
	assert.Equal(t, "N-42", *got.OrderNumber)
	assert.NotNil(t, got.SyncedAt)

	assert.Equal(t, order.ID.String(), captured.ExternalID)
	assert.Equal(t, int32(7), captured.ContractorID)
	assert.Equal(t, "CourierDelivery", captured.DeliveryType)
	assert.Equal(t, int64(23000), captured.TotalAmount)
	require.Len(t, captured.Items, 2)
	require.NotNil(t, captured.Items[0].NomenclatureID)
	assert.Equal(t, int32(5), *captured.Items[0].NomenclatureID)
	assert.Equal(t, int64(10000), captured.Items[0].Price)
	// Placeholder ids never cross the wire.
	assert.Nil(t, captured.Items[1].NomenclatureID)
}

func TestPushAlreadySynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected ERP call")
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	remoteContractor := int32(7)
	contractor := seedContractor(t, mem, &remoteContractor)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	remoteOrder := int32(42)
	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	got.RemoteOrderID = &remoteOrder
	require.NoError(t, mem.UpdateOrder(context.Background(), got, false))

	p := newTestPusher(mem, srv.URL)
	err = p.Push(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrAlreadySynced)
}

func TestPushContractorNotSynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected ERP call")
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	contractor := seedContractor(t, mem, nil)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	p := newTestPusher(mem, srv.URL)
	err := p.Push(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrContractorNotSynced)
}

func TestPushDropsCollidingOrderNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(erp.CreateOrderResponse{OrderID: 42, OrderNumber: "N-42"})
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	remoteID := int32(7)
	contractor := seedContractor(t, mem, &remoteID)

	// Another order already holds the number the ERP hands back.
	taken := "N-42"
	other := &models.Order{
		ID:           uuid.New(),
		ContractorID: contractor.ID,
		Status:       models.StatusProcessing,
		OrderNumber:  &taken,
		RemoteOrderID: func() *int32 {
			id := int32(41)
			return &id
		}(),
	}
	require.NoError(t, mem.CreateOrder(context.Background(), other))

	order := seedUnsyncedOrder(t, mem, contractor.ID)

	p := newTestPusher(mem, srv.URL)
	require.NoError(t, p.Push(context.Background(), order.ID))

	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	// Remote id recorded, colliding order number dropped on retry.
	require.NotNil(t, got.RemoteOrderID)
	assert.Equal(t, int32(42), *got.RemoteOrderID)
	assert.Nil(t, got.OrderNumber)
}

func TestCancelLocalOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected ERP call for unsynced order")
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	contractor := seedContractor(t, mem, nil)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	p := newTestPusher(mem, srv.URL)
	require.NoError(t, p.Cancel(context.Background(), order.ID, "changed my mind"))

	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	require.Len(t, got.StatusHistory, 2)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Equal(t, models.StatusCancelled, last.Status)
	require.NotNil(t, last.Comment)
	assert.Equal(t, "changed my mind", *last.Comment)

	// Cancelling a cancelled order is a no-op, not an error.
	require.NoError(t, p.Cancel(context.Background(), order.ID, ""))
	got, err = mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 2)
}

func TestCancelPushesToRemote(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem := storetest.NewMem()
	remoteContractor := int32(7)
	contractor := seedContractor(t, mem, &remoteContractor)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	remoteOrder := int32(42)
	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	got.RemoteOrderID = &remoteOrder
	require.NoError(t, mem.UpdateOrder(context.Background(), got, false))

	p := newTestPusher(mem, srv.URL)
	require.NoError(t, p.Cancel(context.Background(), order.ID, ""))

	assert.Equal(t, "/api/orders/42/status", path)
	assert.Equal(t, "Canceled", body["status"])

	got, err = mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelNotAllowedAfterProduction(t *testing.T) {
	mem := storetest.NewMem()
	contractor := seedContractor(t, mem, nil)
	order := seedUnsyncedOrder(t, mem, contractor.ID)

	got, err := mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	got.Status = models.StatusManufacturing
	require.NoError(t, mem.UpdateOrder(context.Background(), got, false))

	p := newTestPusher(mem, "http://127.0.0.1:0")
	err = p.Cancel(context.Background(), order.ID, "")
	assert.ErrorIs(t, err, ErrCancelNotAllowed)

	got, err = mem.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManufacturing, got.Status)
}
