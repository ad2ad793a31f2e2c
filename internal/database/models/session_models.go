package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a contractor's cabinet login. Authentication mechanics live
// outside this service; the account row anchors sessions.
type Account struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContractorID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Email        string    `gorm:"type:varchar(256);uniqueIndex;not null"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index"`
	IsActive  bool      `gorm:"not null;default:true"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Session) Live(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

func MigrateSessionDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&Session{},
	)
}
