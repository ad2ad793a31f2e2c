package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fimbiz-sync/internal/database"
)

type OrderStatus string

const (
	StatusProcessing           OrderStatus = "Processing"
	StatusAwaitingPayment      OrderStatus = "AwaitingPayment"
	StatusInvoiceConfirmed     OrderStatus = "InvoiceConfirmed"
	StatusManufacturing        OrderStatus = "Manufacturing"
	StatusAssembling           OrderStatus = "Assembling"
	StatusTransferredToCarrier OrderStatus = "TransferredToCarrier"
	StatusDeliveringByCarrier  OrderStatus = "DeliveringByCarrier"
	StatusDelivering           OrderStatus = "Delivering"
	StatusAwaitingPickup       OrderStatus = "AwaitingPickup"
	StatusReceived             OrderStatus = "Received"
	StatusCancelled            OrderStatus = "Cancelled"
)

type DeliveryType string

const (
	DeliveryPickup  DeliveryType = "Pickup"
	DeliveryCourier DeliveryType = "Courier"
	DeliveryCarrier DeliveryType = "Carrier"
)

type Order struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContractorID uuid.UUID `gorm:"type:uuid;not null;index"`

	// Remote linkage, set once the order is known to the ERP.
	RemoteOrderID *int32  `gorm:"uniqueIndex"`
	OrderNumber   *string `gorm:"type:varchar(32);uniqueIndex"`

	Status       OrderStatus     `gorm:"type:varchar(32);not null"`
	DeliveryType DeliveryType    `gorm:"type:varchar(16);not null"`
	TotalAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	TrackingNumber *string `gorm:"type:varchar(64)"`
	Carrier        *string `gorm:"type:varchar(128)"`
	IsPriority     bool    `gorm:"not null;default:false"`

	AttachmentURLs database.StringArray `gorm:"type:jsonb"`

	InvoiceID     *uuid.UUID `gorm:"type:uuid"`
	UpdDocumentID *uuid.UUID `gorm:"type:uuid"`

	// Optimistic concurrency token, bumped on every update.
	Version int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
	SyncedAt  *time.Time

	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory []StatusHistoryEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderItem struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	NomenclatureID  int32           `gorm:"not null"`
	Name            string          `gorm:"type:varchar(256)"`
	Quantity        int32           `gorm:"not null"`
	Price           decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt       time.Time
}

// LineTotal computes price*(1-discount/100)*quantity rounded to cents.
func (i OrderItem) LineTotal() decimal.Decimal {
	discount := decimal.NewFromInt(100).Sub(i.DiscountPercent).Div(decimal.NewFromInt(100))
	return i.Price.Mul(discount).Mul(decimal.NewFromInt32(i.Quantity)).Round(2)
}

// StatusHistoryEntry is append-only: rows are never updated or reordered.
type StatusHistoryEntry struct {
	ID        int64       `gorm:"primaryKey;autoIncrement"`
	OrderID   uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status    OrderStatus `gorm:"type:varchar(32);not null"`
	ChangedAt time.Time   `gorm:"not null"`
	Comment   *string     `gorm:"type:text"`
}

type OrderComment struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ExternalID string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Author     string    `gorm:"type:varchar(128)"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

type Invoice struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	DocumentURL string    `gorm:"type:varchar(512);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaxDocument requires its order's invoice to exist first; the reconciler
// enforces that before insert.
type TaxDocument struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	InvoiceID   uuid.UUID `gorm:"type:uuid;not null"`
	DocumentURL string    `gorm:"type:varchar(512);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func MigrateOrderDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&Order{},
		&OrderItem{},
		&StatusHistoryEntry{},
		&OrderComment{},
		&Invoice{},
		&TaxDocument{},
	)
}
