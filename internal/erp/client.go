// Package erp is the Local→Remote side of the protocol: a JSON-over-HTTP
// client for the ERP's order and contractor API, including the streamed
// contractor change feed.
package erp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is a configuration problem: never retried.
	ErrUnauthorized = errors.New("erp: authentication failed")
	// ErrNotFound: callers decide whether absence is expected.
	ErrNotFound = errors.New("erp: not found")
	// ErrValidation is permanent: the request itself is bad.
	ErrValidation = errors.New("erp: validation failed")
)

// Retryable reports whether an ERP call failure is worth re-driving later
// (by the sweeper for outbound work, by reconnect for the feed).
func Retryable(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrUnauthorized) &&
		!errors.Is(err, ErrValidation)
}

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-Api-Key", apiKey).
		SetTimeout(timeout)

	return &Client{http: httpClient, log: log}
}

func statusErr(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, resp.String())
	default:
		return fmt.Errorf("erp: unexpected status %d", resp.StatusCode())
	}
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	var out CreateOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/orders")
	if err != nil {
		return CreateOrderResponse{}, fmt.Errorf("erp: create order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return CreateOrderResponse{}, statusErr(resp)
	}
	return out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int32, status string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": status}).
		Post("/api/orders/" + strconv.FormatInt(int64(orderID), 10) + "/status")
	if err != nil {
		return fmt.Errorf("erp: update order status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusErr(resp)
	}
	return nil
}

func (c *Client) GetOrder(ctx context.Context, orderID int32) (OrderWire, error) {
	var out OrderWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/orders/" + strconv.FormatInt(int64(orderID), 10))
	if err != nil {
		return OrderWire{}, fmt.Errorf("erp: get order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderWire{}, statusErr(resp)
	}
	return out, nil
}

func (c *Client) CreateComment(ctx context.Context, orderID int32, comment CommentWire) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(comment).
		Post("/api/orders/" + strconv.FormatInt(int64(orderID), 10) + "/comments")
	if err != nil {
		return fmt.Errorf("erp: create comment: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return statusErr(resp)
	}
	return nil
}

func (c *Client) GetOrderComments(ctx context.Context, orderID int32) ([]CommentWire, error) {
	var out []CommentWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/orders/" + strconv.FormatInt(int64(orderID), 10) + "/comments")
	if err != nil {
		return nil, fmt.Errorf("erp: get order comments: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr(resp)
	}
	return out, nil
}

func (c *Client) GetContractor(ctx context.Context, contractorID int32) (ContractorWire, error) {
	var out ContractorWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/contractors/" + strconv.FormatInt(int64(contractorID), 10))
	if err != nil {
		return ContractorWire{}, fmt.Errorf("erp: get contractor: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return ContractorWire{}, statusErr(resp)
	}
	return out, nil
}

func (c *Client) GetContractors(ctx context.Context, companyID int32, organizationID *int32, page, pageSize int) (ContractorPage, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("companyId", strconv.FormatInt(int64(companyID), 10)).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("pageSize", strconv.Itoa(pageSize))
	if organizationID != nil {
		req.SetQueryParam("organizationId", strconv.FormatInt(int64(*organizationID), 10))
	}

	var out ContractorPage
	resp, err := req.SetResult(&out).Get("/api/contractors")
	if err != nil {
		return ContractorPage{}, fmt.Errorf("erp: get contractors: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return ContractorPage{}, statusErr(resp)
	}
	return out, nil
}

// SubscribeToChanges opens the contractor change feed and invokes handle for
// every event, in order, until the stream ends, the context is cancelled, or
// handle returns an error. The feed is newline-delimited JSON; reconnecting
// after a disconnect is the caller's responsibility.
func (c *Client) SubscribeToChanges(ctx context.Context, companyID int32, organizationID *int32, sinceVersion int64, handle func(ChangeEvent) error) error {
	req := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParam("companyId", strconv.FormatInt(int64(companyID), 10)).
		SetQueryParam("sinceVersion", strconv.FormatInt(sinceVersion, 10))
	if organizationID != nil {
		req.SetQueryParam("organizationId", strconv.FormatInt(int64(*organizationID), 10))
	}

	resp, err := req.Get("/api/changes")
	if err != nil {
		return fmt.Errorf("erp: subscribe: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return statusErr(resp)
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event ChangeEvent
		if err := json.Unmarshal(line, &event); err != nil {
			c.log.Warn("malformed feed event, skipped", zap.Error(err))
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("erp: feed stream: %w", err)
	}
	return nil
}
