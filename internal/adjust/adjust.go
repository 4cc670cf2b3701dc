// Package adjust lets HR and admins grant or deduct credits by hand.
package adjust

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/utils"
	"credit_ledger/internal/wallet"
)

// Service applies administrative grants and deductions.
type Service struct {
	conn     *gorm.DB
	poster   *wallet.Poster
	wallets  *wallet.Repository
	notifier *notify.Dispatcher
}

// NewService builds the adjustment service.
func NewService(conn *gorm.DB, poster *wallet.Poster, wallets *wallet.Repository, notifier *notify.Dispatcher) *Service {
	return &Service{conn: conn, poster: poster, wallets: wallets, notifier: notifier}
}

// Adjust applies a signed amount to the target's wallet. Positive amounts are
// grants, negative ones deductions.
func (s *Service) Adjust(ctx context.Context, actor domain.Actor, targetUserID uint, amount money.Credits) (domain.Wallet, error) {
	if !actor.Role.CanAdjust() {
		utils.SecurityEvent("adjust_forbidden", "medium", logrus.Fields{
			"actor_id":       actor.ID,
			"role":           actor.Role,
			"target_user_id": targetUserID,
			"amount":         int64(amount),
		})
		return domain.Wallet{}, domain.ErrForbidden
	}
	if amount == 0 || targetUserID == 0 {
		return domain.Wallet{}, domain.ErrInvalidAmount
	}

	typ := domain.TxAdminGrant
	if amount < 0 {
		typ = domain.TxAdminDeduct
	}

	var res wallet.Result
	err := db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		var target domain.User
		if err := tx.DB().Select("id").First(&target, targetUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}

		var err error
		res, err = s.poster.Post(tx, wallet.Posting{
			UserID:    targetUserID,
			Delta:     amount,
			Mode:      domain.ModeCredit,
			Type:      typ,
			Reference: fmt.Sprintf("actor:%d", actor.ID),
		})
		return err
	})
	if err != nil {
		return domain.Wallet{}, err
	}

	s.wallets.Invalidate(ctx, targetUserID)
	s.notifier.After(notify.Event{
		UserID:  targetUserID,
		Type:    typ,
		Amount:  amount.Abs(),
		Balance: res.Wallet.Balance,
		EntryID: res.Entry.ID,
	})
	logrus.WithFields(logrus.Fields{
		"actor_id":       actor.ID,
		"role":           actor.Role,
		"target_user_id": targetUserID,
		"amount":         int64(amount),
		"balance":        int64(res.Wallet.Balance),
	}).Info("Balance adjusted")
	return res.Wallet, nil
}
