package domain

import (
	"time"

	"credit_ledger/internal/money"
)

// PaymentMode says where the value of a ledger entry came from
type PaymentMode string

const (
	ModeCredit  PaymentMode = "CREDIT"  // Internal credits (admin grants, seeding, order debits)
	ModeCash    PaymentMode = "CASH"    // Paid through the payment gateway
	ModeVoucher PaymentMode = "VOUCHER" // Voucher redemption
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxCredit            TransactionType = "CREDIT"
	TxDebit             TransactionType = "DEBIT"
	TxBundlePurchase    TransactionType = "BUNDLE_PURCHASE"
	TxAdminGrant        TransactionType = "ADMIN_GRANT"
	TxAdminDeduct       TransactionType = "ADMIN_DEDUCT"
	TxVoucherRedemption TransactionType = "VOUCHER_REDEMPTION"
	TxDemoSeed          TransactionType = "DEMO_SEED"
	TxCompanySeed       TransactionType = "COMPANY_SEED"
	TxRefund            TransactionType = "REFUND"
)

// LedgerEntry Model, immutable once written
type LedgerEntry struct {
	ID              uint            `gorm:"primaryKey" json:"id"`                                             // Primary key
	UserID          uint            `gorm:"not null;index:idx_ledger_user_created,priority:1" json:"user_id"` // Owner
	WalletID        uint            `gorm:"not null;index" json:"wallet_id"`                                  // Wallet the entry applies to
	Amount          money.Credits   `gorm:"not null" json:"amount"`                                           // Magnitude, never negative
	IsCredit        bool            `gorm:"not null" json:"is_credit"`                                        // Sign of the entry
	ModeOfPayment   PaymentMode     `gorm:"type:varchar(16);not null" json:"mode_of_payment"`                 // Source of value
	CashAmount      money.Paise     `gorm:"not null;default:0" json:"cash_amount,omitempty"`                  // Gross gateway amount for cash entries
	TransactionType TransactionType `gorm:"type:varchar(32);not null;index" json:"transaction_type"`          // Entry classification
	BalanceAfterTxn money.Credits   `gorm:"not null" json:"balance_after_txn"`                                // Advisory snapshot, display only
	OrderID         *uint           `gorm:"index" json:"order_id,omitempty"`                                  // Optional back-reference to an order
	Reference       string          `gorm:"type:varchar(120);index" json:"reference,omitempty"`               // Gateway payment id or voucher code
	RateVersion     string          `gorm:"type:varchar(16)" json:"rate_version,omitempty"`                   // Conversion rate used for cash entries
	IsDemo          bool            `gorm:"not null;default:false;index" json:"is_demo"`                      // Excluded from financial reporting
	CreatedAt       time.Time       `gorm:"index:idx_ledger_user_created,priority:2" json:"created_at"`       // Creation timestamp
}

// Signed returns the entry amount with its sign applied
func (e LedgerEntry) Signed() money.Credits {
	if e.IsCredit {
		return e.Amount
	}
	return -e.Amount
}
