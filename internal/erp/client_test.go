package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, "test-key", 5*time.Second, zap.NewNop())
}

func TestCreateOrderSendsKeyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ext-1", req.ExternalID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateOrderResponse{OrderID: 42, OrderNumber: "N-42"})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).CreateOrder(context.Background(), CreateOrderRequest{ExternalID: "ext-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(42), resp.OrderID)
	assert.Equal(t, "N-42", resp.OrderNumber)
}

func TestStatusErrorTaxonomy(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusUnprocessableEntity, ErrValidation},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		_, err := newTestClient(srv.URL).GetOrder(context.Background(), 1)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.code)
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := newTestClient(srv.URL).GetOrder(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, Retryable(err))
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrUnauthorized))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", ErrValidation)))
	assert.True(t, Retryable(ErrNotFound))
	assert.True(t, Retryable(errors.New("connection refused")))
}

func TestGetContractorsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "3", q.Get("companyId"))
		assert.Equal(t, "9", q.Get("organizationId"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "100", q.Get("pageSize"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ContractorPage{
			Contractors: []ContractorWire{{ID: 1, Name: "One"}},
			Total:       1,
		})
	}))
	defer srv.Close()

	org := int32(9)
	pg, err := newTestClient(srv.URL).GetContractors(context.Background(), 3, &org, 2, 100)
	require.NoError(t, err)
	require.Len(t, pg.Contractors, 1)
	assert.Equal(t, "One", pg.Contractors[0].Name)
}

func TestSubscribeToChangesStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/changes", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("sinceVersion"))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"version":5,"contractor":{"id":1,"name":"A"}}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, `{"version":6,"contractor":{"id":2,"name":"B"}}`)
	}))
	defer srv.Close()

	var events []ChangeEvent
	err := newTestClient(srv.URL).SubscribeToChanges(context.Background(), 1, nil, 4, func(ev ChangeEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	// Blank and malformed lines are skipped, well-formed events kept in order.
	require.Len(t, events, 2)
	assert.Equal(t, int64(5), events[0].Version)
	assert.Equal(t, "A", events[0].Contractor.Name)
	assert.Equal(t, int64(6), events[1].Version)
}

func TestSubscribeToChangesHandlerErrorEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"version":1,"contractor":{"id":1}}`)
		fmt.Fprintln(w, `{"version":2,"contractor":{"id":2}}`)
	}))
	defer srv.Close()

	seen := 0
	stop := errors.New("stop")
	err := newTestClient(srv.URL).SubscribeToChanges(context.Background(), 1, nil, 0, func(ev ChangeEvent) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestUpdateOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/42/status", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Canceled", body["status"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UpdateOrderStatus(context.Background(), 42, "Canceled")
	require.NoError(t, err)
}
