// Package wallet holds the per-user balance projection of the ledger and the
// posting primitive every balance writer goes through.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
	"credit_ledger/internal/utils"
)

// Repository reads and mutates wallet rows.
type Repository struct {
	conn *gorm.DB
	rdb  *redis.Client
	ttl  time.Duration
	now  func() time.Time
}

// NewRepository builds a repository. rdb may be nil to disable caching.
func NewRepository(conn *gorm.DB, rdb *redis.Client, ttl time.Duration) *Repository {
	return &Repository{conn: conn, rdb: rdb, ttl: ttl, now: time.Now}
}

// GetOrCreate returns the user's wallet, creating an empty one valid for a year
// if none exists. Concurrent callers converge on the same row.
func (r *Repository) GetOrCreate(tx *db.Tx, userID uint) (domain.Wallet, error) {
	fresh := domain.Wallet{
		UserID:     userID,
		ExpiryDate: r.now().UTC().Add(domain.WalletValidity),
	}
	err := tx.DB().
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&fresh).Error
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}

	var w domain.Wallet
	if err := tx.DB().Where("user_id = ?", userID).First(&w).Error; err != nil {
		return domain.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

// Lock takes a row lock on the wallet for the rest of the transaction.
func (r *Repository) Lock(tx *db.Tx, walletID uint) (domain.Wallet, error) {
	var w domain.Wallet
	err := tx.DB().Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// ApplyDelta adds delta to the balance in a single UPDATE evaluated by the
// database. The balance never goes below zero.
func (r *Repository) ApplyDelta(tx *db.Tx, walletID uint, delta money.Credits) (domain.Wallet, error) {
	res := tx.DB().Model(&domain.Wallet{}).
		Where("id = ? AND balance + ? >= 0", walletID, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return domain.Wallet{}, fmt.Errorf("apply delta: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Lock(tx, walletID); err != nil {
			return domain.Wallet{}, err
		}
		return domain.Wallet{}, domain.ErrInsufficientBalance
	}

	var w domain.Wallet
	if err := tx.DB().First(&w, walletID).Error; err != nil {
		return domain.Wallet{}, fmt.Errorf("reload wallet: %w", err)
	}
	return w, nil
}

// Get returns the user's wallet for display, served from Redis when warm.
func (r *Repository) Get(ctx context.Context, userID uint) (domain.Wallet, bool, error) {
	var w domain.Wallet
	if found, err := utils.GetCache(ctx, r.rdb, utils.WalletKey(userID), &w); err == nil && found {
		return w, true, nil
	}

	err := r.conn.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Wallet{}, false, domain.ErrWalletNotFound
	}
	if err != nil {
		return domain.Wallet{}, false, fmt.Errorf("get wallet: %w", err)
	}
	_ = utils.SetCache(ctx, r.rdb, utils.WalletKey(userID), w, r.ttl)
	return w, false, nil
}

// Current reads the wallet straight from the database, bypassing the cache.
// A user without a wallet has a zero balance.
func (r *Repository) Current(ctx context.Context, userID uint) (domain.Wallet, error) {
	var w domain.Wallet
	err := r.conn.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// Invalidate drops cached reads for the user. Call it after commit.
func (r *Repository) Invalidate(ctx context.Context, userID uint) {
	if err := utils.DeleteCache(ctx, r.rdb, utils.WalletKey(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("wallet cache invalidation failed")
	}
	if err := utils.DeletePrefix(ctx, r.rdb, utils.HistoryPrefix(userID)+":"); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("history cache invalidation failed")
	}
}
