// Package provision hands out opening balances: the fixed demo grant and
// company-funded seeds. Each kind is granted at most once per wallet.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/wallet"
)

// DemoInitialCredits is what every demo account starts with.
const DemoInitialCredits money.Credits = 10000

// ErrUsernameTaken is returned when the demo username is in use.
var ErrUsernameTaken = errors.New("username already exists")

// Service seeds opening balances and demo accounts.
type Service struct {
	conn     *gorm.DB
	wallets  *wallet.Repository
	ledger   *ledger.Store
	poster   *wallet.Poster
	notifier *notify.Dispatcher
}

// NewService builds the provisioning service.
func NewService(conn *gorm.DB, wallets *wallet.Repository, entries *ledger.Store, poster *wallet.Poster, notifier *notify.Dispatcher) *Service {
	return &Service{conn: conn, wallets: wallets, ledger: entries, poster: poster, notifier: notifier}
}

// Seed is the outcome of a seeding call. Seeded is false when the wallet had
// already received this kind of grant.
type Seed struct {
	Wallet domain.Wallet
	Seeded bool
}

// SeedDemo grants the demo opening balance. The entry is marked demo so that
// reporting leaves it out.
func (s *Service) SeedDemo(ctx context.Context, userID uint) (Seed, error) {
	var out Seed
	err := db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		var err error
		out, err = s.seed(tx, userID, DemoInitialCredits, domain.TxDemoSeed, true)
		return err
	})
	if err != nil {
		return Seed{}, err
	}
	s.after(ctx, userID, domain.TxDemoSeed, DemoInitialCredits, out)
	return out, nil
}

// SeedCompany grants a company-funded opening balance.
func (s *Service) SeedCompany(ctx context.Context, userID uint, amount money.Credits) (Seed, error) {
	if amount <= 0 {
		return Seed{}, domain.ErrInvalidAmount
	}
	var out Seed
	err := db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		var u domain.User
		if err := tx.DB().Select("id").First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		var err error
		out, err = s.seed(tx, userID, amount, domain.TxCompanySeed, false)
		return err
	})
	if err != nil {
		return Seed{}, err
	}
	s.after(ctx, userID, domain.TxCompanySeed, amount, out)
	return out, nil
}

// CreateDemoAccount registers a demo employee and seeds its wallet in the same
// transaction.
func (s *Service) CreateDemoAccount(ctx context.Context, username, password string) (domain.User, Seed, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, Seed{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Username: strings.ToLower(username),
		Password: string(hash),
		Role:     domain.RoleEmployee,
		IsDemo:   true,
	}
	var out Seed
	err = db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		var n int64
		if err := tx.DB().Model(&domain.User{}).Where("username = ?", user.Username).Count(&n).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if n > 0 {
			return ErrUsernameTaken
		}
		if err := tx.DB().Omit("Wallet").Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		var err error
		out, err = s.seed(tx, user.ID, DemoInitialCredits, domain.TxDemoSeed, true)
		return err
	})
	if err != nil {
		return domain.User{}, Seed{}, err
	}
	s.after(ctx, user.ID, domain.TxDemoSeed, DemoInitialCredits, out)
	return user, out, nil
}

func (s *Service) seed(tx *db.Tx, userID uint, amount money.Credits, typ domain.TransactionType, demo bool) (Seed, error) {
	w, err := s.wallets.GetOrCreate(tx, userID)
	if err != nil {
		return Seed{}, err
	}
	w, err = s.wallets.Lock(tx, w.ID)
	if err != nil {
		return Seed{}, err
	}
	done, err := s.ledger.HasType(tx, w.ID, typ)
	if err != nil {
		return Seed{}, err
	}
	if done {
		return Seed{Wallet: w}, nil
	}

	res, err := s.poster.Post(tx, wallet.Posting{
		UserID:      userID,
		Delta:       amount,
		Mode:        domain.ModeCredit,
		Type:        typ,
		RateVersion: money.CreditRateVersion,
		IsDemo:      demo,
	})
	if err != nil {
		return Seed{}, err
	}
	return Seed{Wallet: res.Wallet, Seeded: true}, nil
}

func (s *Service) after(ctx context.Context, userID uint, typ domain.TransactionType, amount money.Credits, out Seed) {
	if !out.Seeded {
		logrus.WithFields(logrus.Fields{"user_id": userID, "type": typ}).Info("Wallet already seeded")
		return
	}
	s.wallets.Invalidate(ctx, userID)
	s.notifier.After(notify.Event{UserID: userID, Type: typ, Amount: amount, Balance: out.Wallet.Balance})
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"type":    typ,
		"amount":  int64(amount),
		"balance": int64(out.Wallet.Balance),
	}).Info("Wallet seeded")
}
