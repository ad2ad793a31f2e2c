package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shop is a storefront tied to one ERP company. Endpoint and credential
// override the global default when set.
type Shop struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"type:varchar(128);not null"`
	CompanyID      int32     `gorm:"not null;index"`
	OrganizationID *int32
	ERPBaseURL     *string `gorm:"type:varchar(256)"`
	ERPAPIKey      *string `gorm:"type:varchar(128)"`
	IsActive       bool    `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Contractor struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	RemoteContractorID *int32    `gorm:"uniqueIndex"`
	CompanyID          int32     `gorm:"not null;index"`
	OrganizationID     *int32
	Name               string `gorm:"type:varchar(256);not null"`
	TaxNumber          string `gorm:"type:varchar(32)"`

	// Resume cursor for the ERP change feed.
	LastSyncVersion int64 `gorm:"not null;default:0"`

	IsCabinetEnabled bool `gorm:"not null;default:false"`

	Version int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Discounts []Discount `gorm:"foreignKey:ContractorID;constraint:OnDelete:CASCADE"`
}

// Discount applies to one nomenclature item, one nomenclature group, or the
// whole contractor when both ids are nil. Rows are replaced wholesale on every
// contractor sync.
type Discount struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement"`
	ContractorID        uuid.UUID `gorm:"type:uuid;not null;index"`
	NomenclatureID      *int32
	NomenclatureGroupID *int32
	Percent             decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	ValidFrom           time.Time       `gorm:"not null"`
	ValidTo             *time.Time
	CreatedAt           time.Time
}

func MigrateContractorDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&Shop{},
		&Contractor{},
		&Discount{},
	)
}
