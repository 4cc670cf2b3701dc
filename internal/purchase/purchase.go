// Package purchase spends credits on marketplace orders and reverses them.
// A refund never edits the original debit: it posts an offsetting REFUND entry
// linked to the same order.
package purchase

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/wallet"
)

// Service posts order debits and refunds.
type Service struct {
	conn     *gorm.DB
	wallets  *wallet.Repository
	ledger   *ledger.Store
	poster   *wallet.Poster
	notifier *notify.Dispatcher
}

// NewService builds the purchase service.
func NewService(conn *gorm.DB, wallets *wallet.Repository, entries *ledger.Store, poster *wallet.Poster, notifier *notify.Dispatcher) *Service {
	return &Service{conn: conn, wallets: wallets, ledger: entries, poster: poster, notifier: notifier}
}

// Debit charges amount against the user's wallet for an order. typ is DEBIT
// for a regular order or BUNDLE_PURCHASE for a bundle.
func (s *Service) Debit(ctx context.Context, userID, orderID uint, amount money.Credits, typ domain.TransactionType) (wallet.Result, error) {
	if amount <= 0 || orderID == 0 {
		return wallet.Result{}, domain.ErrInvalidAmount
	}
	if typ == "" {
		typ = domain.TxDebit
	}
	if typ != domain.TxDebit && typ != domain.TxBundlePurchase {
		return wallet.Result{}, fmt.Errorf("%w: unsupported debit type %q", domain.ErrInvalidAmount, typ)
	}

	var res wallet.Result
	err := db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		var err error
		res, err = s.poster.Post(tx, wallet.Posting{
			UserID:  userID,
			Delta:   -amount,
			Mode:    domain.ModeCredit,
			Type:    typ,
			OrderID: &orderID,
		})
		return err
	})
	if err != nil {
		return wallet.Result{}, err
	}

	s.wallets.Invalidate(ctx, userID)
	s.notifier.After(notify.Event{UserID: userID, Type: typ, Amount: amount, Balance: res.Wallet.Balance, EntryID: res.Entry.ID})
	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"order_id": orderID,
		"type":     typ,
		"amount":   int64(amount),
		"balance":  int64(res.Wallet.Balance),
	}).Info("Order debited")
	return res, nil
}

// Refund credits back everything debited for the order, one REFUND entry per
// user that paid into it. An order is refunded at most once.
func (s *Service) Refund(ctx context.Context, orderID uint) ([]wallet.Result, error) {
	debits, err := s.ledger.ByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payers := payersOf(debits)
	if len(payers) == 0 {
		return nil, domain.ErrNothingToRefund
	}

	var refunds []wallet.Result
	err = db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		// Ascending user id, so concurrent refunds of the same order queue on
		// the same first wallet.
		for _, userID := range payers {
			w, err := s.wallets.GetOrCreate(tx, userID)
			if err != nil {
				return err
			}
			if _, err := s.wallets.Lock(tx, w.ID); err != nil {
				return err
			}
		}

		entries, err := s.ledger.ByOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		owed := make(map[uint]money.Credits)
		for _, e := range entries {
			if e.TransactionType == domain.TxRefund {
				return domain.ErrAlreadyRefunded
			}
			if !e.IsCredit {
				owed[e.UserID] += e.Amount
			}
		}

		for _, userID := range payersOf(entries) {
			res, err := s.poster.Post(tx, wallet.Posting{
				UserID:    userID,
				Delta:     owed[userID],
				Mode:      domain.ModeCredit,
				Type:      domain.TxRefund,
				OrderID:   &orderID,
				Reference: fmt.Sprintf("refund:%d", orderID),
			})
			if err != nil {
				return err
			}
			refunds = append(refunds, res)
		}
		if len(refunds) == 0 {
			return domain.ErrNothingToRefund
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, res := range refunds {
		userID := res.Wallet.UserID
		s.wallets.Invalidate(ctx, userID)
		s.notifier.After(notify.Event{UserID: userID, Type: domain.TxRefund, Amount: res.Entry.Amount, Balance: res.Wallet.Balance, EntryID: res.Entry.ID})
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": orderID,
			"amount":   int64(res.Entry.Amount),
			"balance":  int64(res.Wallet.Balance),
		}).Info("Order refunded")
	}
	return refunds, nil
}

// payersOf lists the users holding debits in entries, ascending.
func payersOf(entries []domain.LedgerEntry) []uint {
	seen := make(map[uint]bool)
	var users []uint
	for _, e := range entries {
		if !e.IsCredit && !seen[e.UserID] {
			seen[e.UserID] = true
			users = append(users, e.UserID)
		}
	}
	slices.Sort(users)
	return users
}
