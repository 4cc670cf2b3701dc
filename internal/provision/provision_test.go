package provision_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/provision"
	"credit_ledger/internal/wallet"
)

func setup(t *testing.T) (*gorm.DB, *provision.Service) {
	t.Helper()
	conn := dbtest.Open(t)
	wallets := wallet.NewRepository(conn, nil, time.Minute)
	entries := ledger.NewStore(conn)
	return conn, provision.NewService(conn, wallets, entries, wallet.NewPoster(wallets, entries), nil)
}

func TestSeedDemoOnce(t *testing.T) {
	conn, svc := setup(t)
	ctx := context.Background()

	first, err := svc.SeedDemo(ctx, 3)
	require.NoError(t, err)
	assert.True(t, first.Seeded)
	assert.Equal(t, provision.DemoInitialCredits, first.Wallet.Balance)

	second, err := svc.SeedDemo(ctx, 3)
	require.NoError(t, err)
	assert.False(t, second.Seeded)
	assert.Equal(t, provision.DemoInitialCredits, second.Wallet.Balance)

	var entries []domain.LedgerEntry
	require.NoError(t, conn.Where("user_id = ?", 3).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDemo)
	assert.Equal(t, domain.TxDemoSeed, entries[0].TransactionType)
}

func TestSeedCompanyOnceAndNotDemo(t *testing.T) {
	conn, svc := setup(t)
	ctx := context.Background()
	u := domain.User{Username: "emp", Password: "x"}
	require.NoError(t, conn.Create(&u).Error)

	out, err := svc.SeedCompany(ctx, u.ID, 2500)
	require.NoError(t, err)
	assert.True(t, out.Seeded)
	assert.Equal(t, money.Credits(2500), out.Wallet.Balance)

	again, err := svc.SeedCompany(ctx, u.ID, 2500)
	require.NoError(t, err)
	assert.False(t, again.Seeded)
	assert.Equal(t, money.Credits(2500), again.Wallet.Balance)

	var e domain.LedgerEntry
	require.NoError(t, conn.Where("user_id = ?", u.ID).First(&e).Error)
	assert.False(t, e.IsDemo)
	assert.Equal(t, domain.TxCompanySeed, e.TransactionType)

	_, err = svc.SeedCompany(ctx, u.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.SeedCompany(ctx, 4242, 10)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreateDemoAccount(t *testing.T) {
	conn, svc := setup(t)
	ctx := context.Background()

	user, seed, err := svc.CreateDemoAccount(ctx, "DemoUser", "password1")
	require.NoError(t, err)
	assert.Equal(t, "demouser", user.Username)
	assert.True(t, user.IsDemo)
	assert.Equal(t, domain.RoleEmployee, user.Role)
	assert.Equal(t, provision.DemoInitialCredits, seed.Wallet.Balance)

	var stored domain.User
	require.NoError(t, conn.First(&stored, user.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("password1")))

	_, _, err = svc.CreateDemoAccount(ctx, "demouser", "password2")
	assert.ErrorIs(t, err, provision.ErrUsernameTaken)

	var n int64
	require.NoError(t, conn.Model(&domain.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
