// Package voucher issues single-use credit codes and redeems them.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/utils"
	"credit_ledger/internal/wallet"
)

// ErrCodeTaken is returned when a voucher code is already issued.
var ErrCodeTaken = errors.New("voucher code already exists")

// Service issues and redeems vouchers.
type Service struct {
	conn     *gorm.DB
	poster   *wallet.Poster
	wallets  *wallet.Repository
	notifier *notify.Dispatcher
	now      func() time.Time
}

// NewService builds the voucher service.
func NewService(conn *gorm.DB, poster *wallet.Poster, wallets *wallet.Repository, notifier *notify.Dispatcher) *Service {
	return &Service{conn: conn, poster: poster, wallets: wallets, notifier: notifier, now: time.Now}
}

// Create issues a voucher. An empty code gets a random one.
func (s *Service) Create(ctx context.Context, actor domain.Actor, code string, credits money.Credits) (domain.Voucher, error) {
	if !actor.Role.CanAdjust() {
		utils.SecurityEvent("voucher_create_forbidden", "medium", logrus.Fields{"actor_id": actor.ID, "role": actor.Role})
		return domain.Voucher{}, domain.ErrForbidden
	}
	if credits <= 0 {
		return domain.Voucher{}, domain.ErrInvalidAmount
	}

	code = normalize(code)
	if code == "" {
		code = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	}

	v := domain.Voucher{Code: code, Credits: credits, CreatedBy: actor.ID}
	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Voucher{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrCodeTaken
		}
		return tx.Create(&v).Error
	})
	if err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return domain.Voucher{}, err
		}
		return domain.Voucher{}, fmt.Errorf("create voucher: %w", err)
	}

	logrus.WithFields(logrus.Fields{"actor_id": actor.ID, "voucher_id": v.ID, "credits": int64(credits)}).Info("Voucher issued")
	return v, nil
}

// Redeem claims the voucher for userID and credits its value. Only the first
// claim of a code succeeds.
func (s *Service) Redeem(ctx context.Context, userID uint, code string) (wallet.Result, error) {
	code = normalize(code)
	if code == "" {
		return wallet.Result{}, domain.ErrVoucherUnavailable
	}

	var (
		res wallet.Result
		v   domain.Voucher
	)
	err := db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		claim := tx.DB().Model(&domain.Voucher{}).
			Where("code = ? AND redeemed_by IS NULL", code).
			Updates(map[string]any{"redeemed_by": userID, "redeemed_at": s.now().UTC()})
		if claim.Error != nil {
			return fmt.Errorf("claim voucher: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return domain.ErrVoucherUnavailable
		}
		if err := tx.DB().Where("code = ?", code).First(&v).Error; err != nil {
			return fmt.Errorf("load voucher: %w", err)
		}

		var err error
		res, err = s.poster.Post(tx, wallet.Posting{
			UserID:    userID,
			Delta:     v.Credits,
			Mode:      domain.ModeVoucher,
			Type:      domain.TxVoucherRedemption,
			Reference: "voucher:" + v.Code,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrVoucherUnavailable) {
			utils.SecurityEvent("voucher_redeem_rejected", "low", logrus.Fields{"user_id": userID})
		}
		return wallet.Result{}, err
	}

	s.wallets.Invalidate(ctx, userID)
	s.notifier.After(notify.Event{UserID: userID, Type: domain.TxVoucherRedemption, Amount: v.Credits, Balance: res.Wallet.Balance, EntryID: res.Entry.ID})
	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"voucher_id": v.ID,
		"credits":    int64(v.Credits),
		"balance":    int64(res.Wallet.Balance),
	}).Info("Voucher redeemed")
	return res, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
