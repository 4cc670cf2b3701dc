package domain

import (
	"time"

	"credit_ledger/internal/money"
)

// WalletValidity is how long a freshly created wallet stays valid
const WalletValidity = 365 * 24 * time.Hour

// Wallet Model
type Wallet struct {
	ID         uint          `gorm:"primaryKey" json:"id"`                // Primary key
	UserID     uint          `gorm:"uniqueIndex;not null" json:"user_id"` // Owner, one wallet per user
	Balance    money.Credits `gorm:"not null;default:0" json:"balance"`   // Materialized balance, equals the ledger sum
	ExpiryDate time.Time     `gorm:"not null" json:"expiry_date"`         // Credits expire after this date
	CreatedAt  time.Time     `json:"created_at"`                          // Creation timestamp
	UpdatedAt  time.Time     `json:"updated_at"`                          // Last balance change
}
