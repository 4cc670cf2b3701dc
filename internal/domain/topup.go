package domain

import (
	"time"

	"credit_ledger/internal/money"
)

// TopUpStatus is the state of a gateway order shadow
type TopUpStatus string

const (
	TopUpCreated TopUpStatus = "created" // Order created at the gateway, not yet paid
	TopUpPaid    TopUpStatus = "paid"    // Terminal, wallet has been credited
)

// TopUp Model, shadows one gateway order
type TopUp struct {
	ID                uint        `gorm:"primaryKey" json:"id"`                                           // Primary key
	UserID            uint        `gorm:"not null;index" json:"user_id"`                                  // User that will be credited
	RazorpayOrderID   string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"razorpay_order_id"` // External order id
	Amount            money.Paise `gorm:"not null" json:"amount"`                                         // Gross amount in minor units
	Currency          string      `gorm:"type:varchar(8);not null" json:"currency"`                       // ISO currency
	Receipt           string      `gorm:"type:varchar(64)" json:"receipt"`                                // Receipt sent to the gateway
	Status            TopUpStatus `gorm:"type:varchar(16);not null;default:created" json:"status"`        // created -> paid
	RazorpayPaymentID string      `gorm:"type:varchar(64)" json:"razorpay_payment_id,omitempty"`          // External payment id, set when paid
	PaidAt            *time.Time  `json:"paid_at,omitempty"`                                              // When the credit committed
	CreatedAt         time.Time   `json:"created_at"`                                                     // Creation timestamp
	UpdatedAt         time.Time   `json:"updated_at"`                                                     // Last status change
}
