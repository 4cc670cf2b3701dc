package wallet

import (
	"fmt"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
)

// Balances is the wallet side of a posting.
type Balances interface {
	GetOrCreate(tx *db.Tx, userID uint) (domain.Wallet, error)
	Lock(tx *db.Tx, walletID uint) (domain.Wallet, error)
	ApplyDelta(tx *db.Tx, walletID uint, delta money.Credits) (domain.Wallet, error)
}

// Appender is the ledger side of a posting.
type Appender interface {
	Append(tx *db.Tx, e domain.LedgerEntry) (domain.LedgerEntry, error)
}

// Posting describes one balance change. Delta is signed.
type Posting struct {
	UserID      uint
	Delta       money.Credits
	Mode        domain.PaymentMode
	Type        domain.TransactionType
	CashAmount  money.Paise
	OrderID     *uint
	Reference   string
	RateVersion string
	IsDemo      bool // Forced on when the owner is a demo account
}

// Result is the state after a posting.
type Result struct {
	Wallet domain.Wallet      `json:"wallet"`
	Entry  domain.LedgerEntry `json:"entry"`
}

// Poster applies postings: one ledger append plus one atomic balance delta,
// both inside the caller's transaction.
type Poster struct {
	wallets Balances
	ledger  Appender
}

// NewPoster wires a poster over the wallet and ledger stores.
func NewPoster(wallets Balances, ledger Appender) *Poster {
	return &Poster{wallets: wallets, ledger: ledger}
}

// Post must be called inside db.Atomic. The wallet row stays locked from the
// read of the snapshot balance until commit.
func (p *Poster) Post(tx *db.Tx, in Posting) (Result, error) {
	if in.Delta == 0 || in.UserID == 0 {
		return Result{}, domain.ErrInvalidAmount
	}

	w, err := p.wallets.GetOrCreate(tx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	w, err = p.wallets.Lock(tx, w.ID)
	if err != nil {
		return Result{}, err
	}
	after := w.Balance + in.Delta
	if after < 0 {
		return Result{}, domain.ErrInsufficientBalance
	}
	if !in.IsDemo {
		if in.IsDemo, err = ownerIsDemo(tx, in.UserID); err != nil {
			return Result{}, err
		}
	}

	entry, err := p.ledger.Append(tx, domain.LedgerEntry{
		UserID:          in.UserID,
		WalletID:        w.ID,
		Amount:          in.Delta.Abs(),
		IsCredit:        in.Delta > 0,
		ModeOfPayment:   in.Mode,
		CashAmount:      in.CashAmount,
		TransactionType: in.Type,
		BalanceAfterTxn: after,
		OrderID:         in.OrderID,
		Reference:       in.Reference,
		RateVersion:     in.RateVersion,
		IsDemo:          in.IsDemo,
	})
	if err != nil {
		return Result{}, err
	}

	w, err = p.wallets.ApplyDelta(tx, w.ID, in.Delta)
	if err != nil {
		return Result{}, err
	}
	return Result{Wallet: w, Entry: entry}, nil
}

// ownerIsDemo reads users.is_demo for the wallet owner. A missing user row
// counts as a real account.
func ownerIsDemo(tx *db.Tx, userID uint) (bool, error) {
	var flags []bool
	err := tx.DB().Model(&domain.User{}).
		Where("id = ?", userID).
		Limit(1).
		Pluck("is_demo", &flags).Error
	if err != nil {
		return false, fmt.Errorf("load account flags: %w", err)
	}
	return len(flags) == 1 && flags[0], nil
}
