package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/wallet"
)

func setup(t *testing.T) (*gorm.DB, *wallet.Repository, *ledger.Store, *wallet.Poster) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := wallet.NewRepository(conn, nil, time.Minute)
	entries := ledger.NewStore(conn)
	return conn, repo, entries, wallet.NewPoster(repo, entries)
}

func post(t *testing.T, conn *gorm.DB, p *wallet.Poster, in wallet.Posting) (wallet.Result, error) {
	t.Helper()
	var res wallet.Result
	err := db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
		var err error
		res, err = p.Post(tx, in)
		return err
	})
	return res, err
}

func countEntries(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&domain.LedgerEntry{}).Count(&n).Error)
	return n
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	conn, repo, _, _ := setup(t)

	var first, second domain.Wallet
	require.NoError(t, db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
		var err error
		first, err = repo.GetOrCreate(tx, 42)
		return err
	}))
	require.NoError(t, db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
		var err error
		second, err = repo.GetOrCreate(tx, 42)
		return err
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, money.Credits(0), first.Balance)
	assert.WithinDuration(t, time.Now().Add(domain.WalletValidity), first.ExpiryDate, time.Minute)

	var n int64
	require.NoError(t, conn.Model(&domain.Wallet{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPostCreditsAndRecordsSnapshot(t *testing.T) {
	conn, _, entries, poster := setup(t)

	res, err := post(t, conn, poster, wallet.Posting{UserID: 1, Delta: 500, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
	require.NoError(t, err)
	assert.Equal(t, money.Credits(500), res.Wallet.Balance)
	assert.Equal(t, money.Credits(500), res.Entry.BalanceAfterTxn)
	assert.True(t, res.Entry.IsCredit)

	res, err = post(t, conn, poster, wallet.Posting{UserID: 1, Delta: -200, Mode: domain.ModeCredit, Type: domain.TxDebit})
	require.NoError(t, err)
	assert.Equal(t, money.Credits(300), res.Wallet.Balance)
	assert.Equal(t, money.Credits(200), res.Entry.Amount)
	assert.False(t, res.Entry.IsCredit)

	page, total, err := entries.Page(context.Background(), 1, ledger.Filter{IncludeDemo: true}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, domain.TxDebit, page[0].TransactionType, "newest first")
}

func TestPostRejectsOverdraft(t *testing.T) {
	conn, _, _, poster := setup(t)

	_, err := post(t, conn, poster, wallet.Posting{UserID: 1, Delta: 100, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
	require.NoError(t, err)

	_, err = post(t, conn, poster, wallet.Posting{UserID: 1, Delta: -101, Mode: domain.ModeCredit, Type: domain.TxDebit})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(1), countEntries(t, conn))
}

func TestPostRejectsZero(t *testing.T) {
	conn, _, _, poster := setup(t)
	_, err := post(t, conn, poster, wallet.Posting{UserID: 1, Delta: 0, Type: domain.TxAdminGrant})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestApplyDeltaGuardsNegativeBalance(t *testing.T) {
	conn, repo, _, _ := setup(t)

	err := db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
		w, err := repo.GetOrCreate(tx, 3)
		require.NoError(t, err)
		_, err = repo.ApplyDelta(tx, w.ID, -1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	err = db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
		_, err := repo.ApplyDelta(tx, 9999, 5)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

// failingBalances breaks the balance update after the ledger append ran.
type failingBalances struct {
	*wallet.Repository
}

func (f failingBalances) ApplyDelta(*db.Tx, uint, money.Credits) (domain.Wallet, error) {
	return domain.Wallet{}, errors.New("injected failure")
}

func TestPostRollsBackLedgerWhenBalanceUpdateFails(t *testing.T) {
	conn, repo, entries, _ := setup(t)
	poster := wallet.NewPoster(failingBalances{repo}, entries)

	_, err := post(t, conn, poster, wallet.Posting{UserID: 5, Delta: 100, Mode: domain.ModeCash, Type: domain.TxCredit})
	require.Error(t, err)

	assert.Equal(t, int64(0), countEntries(t, conn), "no ledger entry may survive the rollback")
	var n int64
	require.NoError(t, conn.Model(&domain.Wallet{}).Count(&n).Error)
	assert.Equal(t, int64(0), n, "lazily created wallet rolls back too")
}

func TestConcurrentPostsDoNotLoseUpdates(t *testing.T) {
	conn, repo, _, poster := setup(t)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Atomic(context.Background(), conn, func(tx *db.Tx) error {
				_, err := poster.Post(tx, wallet.Posting{UserID: 8, Delta: 10, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	w, _, err := repo.Get(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, money.Credits(workers*10), w.Balance)
	assert.Equal(t, int64(workers), countEntries(t, conn))
}

func TestGetUsesCacheUntilInvalidated(t *testing.T) {
	conn := dbtest.Open(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := wallet.NewRepository(conn, rdb, time.Minute)
	poster := wallet.NewPoster(repo, ledger.NewStore(conn))
	ctx := context.Background()

	_, err := post(t, conn, poster, wallet.Posting{UserID: 2, Delta: 50, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
	require.NoError(t, err)

	w, cached, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, money.Credits(50), w.Balance)

	_, err = post(t, conn, poster, wallet.Posting{UserID: 2, Delta: 25, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
	require.NoError(t, err)

	w, cached, err = repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, money.Credits(50), w.Balance, "stale until invalidated")

	repo.Invalidate(ctx, 2)
	w, cached, err = repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, money.Credits(75), w.Balance)
}

func TestGetMissingWallet(t *testing.T) {
	_, repo, _, _ := setup(t)
	_, _, err := repo.Get(context.Background(), 77)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestCurrentBypassesCacheAndDefaultsToZero(t *testing.T) {
	conn, repo, _, poster := setup(t)
	ctx := context.Background()

	w, err := repo.Current(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, w.Balance)
	assert.Equal(t, uint(9), w.UserID)

	_, err = post(t, conn, poster, wallet.Posting{UserID: 9, Delta: 12, Mode: domain.ModeCredit, Type: domain.TxAdminGrant})
	require.NoError(t, err)
	w, err = repo.Current(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, money.Credits(12), w.Balance)
}

func TestPostFlagsDemoOwnerEntries(t *testing.T) {
	conn, _, _, poster := setup(t)
	demo := domain.User{Username: "demo", Password: "x", IsDemo: true}
	emp := domain.User{Username: "emp", Password: "x"}
	require.NoError(t, conn.Omit("Wallet").Create(&demo).Error)
	require.NoError(t, conn.Omit("Wallet").Create(&emp).Error)

	res, err := post(t, conn, poster, wallet.Posting{UserID: demo.ID, Delta: 40, Mode: domain.ModeCredit, Type: domain.TxVoucherRedemption})
	require.NoError(t, err)
	assert.True(t, res.Entry.IsDemo)

	res, err = post(t, conn, poster, wallet.Posting{UserID: emp.ID, Delta: 40, Mode: domain.ModeCredit, Type: domain.TxVoucherRedemption})
	require.NoError(t, err)
	assert.False(t, res.Entry.IsDemo)
}
