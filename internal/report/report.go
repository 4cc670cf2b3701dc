// Package report exports ledger history and balances for finance. Demo
// activity is left out unless explicitly requested.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"gorm.io/gorm"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
)

var csvHeader = []string{
	"id", "created_at", "user_id", "wallet_id", "transaction_type", "mode_of_payment",
	"direction", "amount", "cash_amount", "balance_after_txn", "order_id", "reference",
	"rate_version", "is_demo",
}

// Summary is revenue collected through the payment gateway.
type Summary struct {
	TopUps     int64         `json:"top_ups"`
	Cash       money.Paise   `json:"cash_paise"`
	CashRupees string        `json:"cash"`
	Credits    money.Credits `json:"credits_issued"`
}

// Balance is one wallet in the balances report.
type Balance struct {
	UserID     uint          `json:"user_id"`
	Username   string        `json:"username"`
	Balance    money.Credits `json:"balance"`
	IsDemo     bool          `json:"is_demo"`
	ExpiryDate time.Time     `json:"expiry_date"`
}

// Service builds finance reports.
type Service struct {
	conn   *gorm.DB
	ledger *ledger.Store
}

// NewService builds the report service.
func NewService(conn *gorm.DB, entries *ledger.Store) *Service {
	return &Service{conn: conn, ledger: entries}
}

// LedgerCSV streams matching entries newest first and returns how many rows
// were written.
func (s *Service) LedgerCSV(ctx context.Context, w io.Writer, f ledger.Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	if f.PageSize == 0 {
		f.PageSize = ledger.MaxPageSize
	}
	rows := 0
	for e, err := range s.ledger.QueryAll(ctx, f) {
		if err != nil {
			return rows, err
		}
		if err := cw.Write(record(e)); err != nil {
			return rows, err
		}
		rows++
	}
	cw.Flush()
	return rows, cw.Error()
}

func record(e domain.LedgerEntry) []string {
	direction := "debit"
	if e.IsCredit {
		direction = "credit"
	}
	order := ""
	if e.OrderID != nil {
		order = strconv.FormatUint(uint64(*e.OrderID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(e.ID), 10),
		e.CreatedAt.UTC().Format(time.RFC3339),
		strconv.FormatUint(uint64(e.UserID), 10),
		strconv.FormatUint(uint64(e.WalletID), 10),
		string(e.TransactionType),
		string(e.ModeOfPayment),
		direction,
		strconv.FormatInt(int64(e.Amount), 10),
		e.CashAmount.String(),
		strconv.FormatInt(int64(e.BalanceAfterTxn), 10),
		order,
		e.Reference,
		e.RateVersion,
		strconv.FormatBool(e.IsDemo),
	}
}

// Revenue sums cash top-ups in the filter's window.
func (s *Service) Revenue(ctx context.Context, f ledger.Filter) (Summary, error) {
	f.Types = []domain.TransactionType{domain.TxCredit}
	f.Modes = []domain.PaymentMode{domain.ModeCash}
	t, err := s.ledger.Totals(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	return Summary{TopUps: t.Entries, Cash: t.Cash, CashRupees: t.Cash.String(), Credits: t.Credits}, nil
}

// Balances lists wallet balances as stored, largest first.
func (s *Service) Balances(ctx context.Context, includeDemo bool) ([]Balance, error) {
	q := s.conn.WithContext(ctx).
		Table("wallets").
		Select("wallets.user_id, COALESCE(users.username, '') AS username, wallets.balance, COALESCE(users.is_demo, false) AS is_demo, wallets.expiry_date").
		Joins("LEFT JOIN users ON users.id = wallets.user_id")
	if !includeDemo {
		q = q.Where("users.is_demo IS NULL OR users.is_demo = ?", false)
	}

	var out []Balance
	if err := q.Order("wallets.balance desc").Order("wallets.user_id").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("balances report: %w", err)
	}
	return out, nil
}
