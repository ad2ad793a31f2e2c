package erp

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money crosses the wire as integer minor units (cents); local code works in
// decimal major units. Conversion is exact in both directions.

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// Timestamps cross the wire as unix seconds; zero means "not set".

func FromUnix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func ToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

type OrderItemWire struct {
	NomenclatureID *int32 `json:"nomenclatureId,omitempty"`
	Name           string `json:"name,omitempty"`
	Quantity       int32  `json:"quantity"`
	Price          int64  `json:"price"`
	Discount       string `json:"discountPercent,omitempty"`
}

type CreateOrderRequest struct {
	ExternalID     string          `json:"externalId"`
	ContractorID   int32           `json:"contractorId"`
	DeliveryType   string          `json:"deliveryType"`
	TotalAmount    int64           `json:"totalAmount"`
	Items          []OrderItemWire `json:"items"`
	AttachmentURLs []string        `json:"attachmentUrls,omitempty"`
}

type CreateOrderResponse struct {
	OrderID     int32  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

type OrderWire struct {
	ID             int32           `json:"id"`
	OrderNumber    string          `json:"orderNumber"`
	Status         string          `json:"status"`
	DeliveryType   string          `json:"deliveryType"`
	TotalAmount    int64           `json:"totalAmount"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	Carrier        string          `json:"carrier,omitempty"`
	UpdatedAt      int64           `json:"updatedAt"`
	Items          []OrderItemWire `json:"items,omitempty"`
}

type CommentWire struct {
	ExternalID string `json:"externalId"`
	Author     string `json:"author,omitempty"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt"`
}

type DiscountWire struct {
	NomenclatureID      *int32 `json:"nomenclatureId,omitempty"`
	NomenclatureGroupID *int32 `json:"nomenclatureGroupId,omitempty"`
	Percent             string `json:"percent"`
	ValidFrom           int64  `json:"validFrom"`
	ValidTo             int64  `json:"validTo,omitempty"`
}

type ContractorWire struct {
	ID               int32          `json:"id"`
	Name             string         `json:"name"`
	TaxNumber        string         `json:"taxNumber,omitempty"`
	IsCabinetEnabled bool           `json:"isCabinetEnabled"`
	Discounts        []DiscountWire `json:"discounts,omitempty"`
}

type ContractorPage struct {
	Contractors []ContractorWire `json:"contractors"`
	Total       int32            `json:"total"`
}

// ChangeEvent is one record of the contractor change feed. Version is the
// monotonic resume cursor.
type ChangeEvent struct {
	Version    int64          `json:"version"`
	Contractor ContractorWire `json:"contractor"`
}
