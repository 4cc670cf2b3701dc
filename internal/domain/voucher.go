package domain

import (
	"time"

	"credit_ledger/internal/money"
)

// Voucher Model, a single-use code worth a fixed number of credits
type Voucher struct {
	ID         uint          `gorm:"primaryKey" json:"id"`                              // Primary key
	Code       string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"` // Redemption code
	Credits    money.Credits `gorm:"not null" json:"credits"`                           // Value granted on redemption
	CreatedBy  uint          `gorm:"not null" json:"created_by"`                        // Admin or HR user that issued it
	RedeemedBy *uint         `gorm:"index" json:"redeemed_by,omitempty"`                // Set exactly once
	RedeemedAt *time.Time    `json:"redeemed_at,omitempty"`                             // Redemption time
	CreatedAt  time.Time     `json:"created_at"`                                        // Creation timestamp
}
