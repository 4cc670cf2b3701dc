// Package ledger is the append-only record of every balance-affecting event.
//
// The exported surface has exactly one write, Append, and it only accepts a
// *db.Tx. Entries are never updated or deleted; corrections are new entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var errAlreadyPersisted = errors.New("ledger entry already persisted")

// Filter narrows a ledger query. The zero value excludes demo entries, which is
// what every reporting path wants; history views set IncludeDemo.
type Filter struct {
	Types       []domain.TransactionType
	Modes       []domain.PaymentMode
	From        time.Time
	To          time.Time
	IncludeDemo bool
	PageSize    int
}

func (f Filter) pageSize() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return f.PageSize
}

// Store reads and appends ledger entries.
type Store struct {
	conn *gorm.DB
}

// NewStore builds a ledger store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// Append writes a new entry inside tx and returns it with its id and timestamp.
func (s *Store) Append(tx *db.Tx, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.ID != 0 {
		return domain.LedgerEntry{}, errAlreadyPersisted
	}
	if e.Amount < 0 || e.CashAmount < 0 {
		return domain.LedgerEntry{}, domain.ErrInvalidAmount
	}
	if e.UserID == 0 || e.WalletID == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("ledger entry without owner: user %d wallet %d", e.UserID, e.WalletID)
	}
	if err := tx.DB().Create(&e).Error; err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return e, nil
}

// QueryByUser lazily walks a user's entries newest first, one page per round trip.
// Iteration stops at the first error, which is yielded with a zero entry.
func (s *Store) QueryByUser(ctx context.Context, userID uint, f Filter) iter.Seq2[domain.LedgerEntry, error] {
	return s.scan(ctx, &userID, f)
}

// QueryAll walks entries of every user newest first.
func (s *Store) QueryAll(ctx context.Context, f Filter) iter.Seq2[domain.LedgerEntry, error] {
	return s.scan(ctx, nil, f)
}

func (s *Store) scan(ctx context.Context, userID *uint, f Filter) iter.Seq2[domain.LedgerEntry, error] {
	size := f.pageSize()
	return func(yield func(domain.LedgerEntry, error) bool) {
		var last *domain.LedgerEntry
		for {
			q := s.filtered(ctx, userID, f)
			if last != nil {
				q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", last.CreatedAt, last.CreatedAt, last.ID)
			}
			var page []domain.LedgerEntry
			if err := q.Order("created_at desc").Order("id desc").Limit(size).Find(&page).Error; err != nil {
				yield(domain.LedgerEntry{}, fmt.Errorf("query ledger: %w", err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
			last = &page[len(page)-1]
		}
	}
}

// Page returns one offset page of a user's history and the total match count.
func (s *Store) Page(ctx context.Context, userID uint, f Filter, page int) ([]domain.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	size := f.pageSize()

	var total int64
	if err := s.filtered(ctx, &userID, f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count ledger: %w", err)
	}
	var entries []domain.LedgerEntry
	err := s.filtered(ctx, &userID, f).
		Order("created_at desc").
		Order("id desc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("page ledger: %w", err)
	}
	return entries, total, nil
}

// Totals aggregates the entries matching f.
type Totals struct {
	Entries int64
	Credits money.Credits
	Cash    money.Paise
}

// Totals sums amounts of the matching credit entries.
func (s *Store) Totals(ctx context.Context, f Filter) (Totals, error) {
	var t Totals
	err := s.filtered(ctx, nil, f).
		Where("is_credit = ?", true).
		Select("COUNT(*) AS entries, COALESCE(SUM(amount), 0) AS credits, COALESCE(SUM(cash_amount), 0) AS cash").
		Scan(&t).Error
	if err != nil {
		return Totals{}, fmt.Errorf("ledger totals: %w", err)
	}
	return t, nil
}

// ByOrder returns the entries attributed to an order, oldest first.
func (s *Store) ByOrder(ctx context.Context, orderID uint) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := s.conn.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ledger by order: %w", err)
	}
	return entries, nil
}

// ByOrderTx is ByOrder inside an open transaction.
func (s *Store) ByOrderTx(tx *db.Tx, orderID uint) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	if err := tx.DB().Where("order_id = ?", orderID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ledger by order: %w", err)
	}
	return entries, nil
}

// HasType reports whether the wallet already carries an entry of the given type.
func (s *Store) HasType(tx *db.Tx, walletID uint, t domain.TransactionType) (bool, error) {
	var n int64
	err := tx.DB().Model(&domain.LedgerEntry{}).
		Where("wallet_id = ? AND transaction_type = ?", walletID, t).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return n > 0, nil
}

func (s *Store) filtered(ctx context.Context, userID *uint, f Filter) *gorm.DB {
	q := s.conn.WithContext(ctx).Model(&domain.LedgerEntry{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if len(f.Types) > 0 {
		q = q.Where("transaction_type IN ?", f.Types)
	}
	if len(f.Modes) > 0 {
		q = q.Where("mode_of_payment IN ?", f.Modes)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	if !f.IncludeDemo {
		q = q.Where("is_demo = ?", false)
	}
	return q
}
