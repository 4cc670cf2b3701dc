package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/provision"
	"credit_ledger/internal/purchase"
	"credit_ledger/internal/report"
	"credit_ledger/internal/wallet"
)

// fixture: an employee who topped up twice and spent some credits, and a
// demo account with its seed, one top-up and one purchase. Nothing is marked
// demo by hand; the flag comes from the account.
func setup(t *testing.T) (*gorm.DB, *report.Service) {
	t.Helper()
	ctx := context.Background()
	conn := dbtest.Open(t)
	wallets := wallet.NewRepository(conn, nil, time.Minute)
	entries := ledger.NewStore(conn)
	poster := wallet.NewPoster(wallets, entries)
	purchases := purchase.NewService(conn, wallets, entries, poster, nil)

	emp := domain.User{Username: "asha", Password: "x"}
	require.NoError(t, conn.Omit("Wallet").Create(&emp).Error)
	demo, _, err := provision.NewService(conn, wallets, entries, poster, nil).CreateDemoAccount(ctx, "demo", "password1")
	require.NoError(t, err)

	topUp := func(userID uint, cash money.Paise) {
		require.NoError(t, db.Atomic(ctx, conn, func(tx *db.Tx) error {
			_, err := poster.Post(tx, wallet.Posting{
				UserID:      userID,
				Delta:       money.ToCredits(cash),
				Mode:        domain.ModeCash,
				Type:        domain.TxCredit,
				CashAmount:  cash,
				RateVersion: money.CreditRateVersion,
			})
			return err
		}))
	}

	topUp(emp.ID, 5000)
	topUp(emp.ID, 2000)
	_, err = purchases.Debit(ctx, emp.ID, 1, 30, domain.TxDebit)
	require.NoError(t, err)
	topUp(demo.ID, 1000)
	_, err = purchases.Debit(ctx, demo.ID, 2, 15, domain.TxDebit)
	require.NoError(t, err)

	return conn, report.NewService(conn, entries)
}

func TestRevenueExcludesDemo(t *testing.T) {
	_, svc := setup(t)

	got, err := svc.Revenue(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TopUps)
	assert.Equal(t, money.Paise(7000), got.Cash)
	assert.Equal(t, "70.00", got.CashRupees)
	assert.Equal(t, money.Credits(140), got.Credits)

	withDemo, err := svc.Revenue(context.Background(), ledger.Filter{IncludeDemo: true})
	require.NoError(t, err)
	assert.Equal(t, money.Paise(8000), withDemo.Cash)
}

func TestLedgerCSV(t *testing.T) {
	_, svc := setup(t)

	var buf bytes.Buffer
	n, err := svc.LedgerCSV(context.Background(), &buf, ledger.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "id", rows[0][0])
	for _, row := range rows[1:] {
		assert.Equal(t, "false", row[len(row)-1])
	}
	assert.Equal(t, "DEBIT", rows[1][4], "newest first")
	assert.Equal(t, "debit", rows[1][6])

	buf.Reset()
	n, err = svc.LedgerCSV(context.Background(), &buf, ledger.Filter{IncludeDemo: true})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestBalancesReadsWalletRows(t *testing.T) {
	conn, svc := setup(t)

	got, err := svc.Balances(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "asha", got[0].Username)
	assert.Equal(t, money.Credits(110), got[0].Balance)

	// The report trusts the stored balance, not a ledger sum.
	require.NoError(t, conn.Model(&domain.Wallet{}).Where("user_id = ?", got[0].UserID).Update("balance", 999).Error)
	got, err = svc.Balances(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, money.Credits(10005), got[0].Balance)
	assert.True(t, got[0].IsDemo)
	assert.Equal(t, money.Credits(999), got[1].Balance)
}

func TestStatementRendersPDF(t *testing.T) {
	conn, svc := setup(t)

	var demo domain.User
	require.NoError(t, conn.Where("username = ?", "demo").First(&demo).Error)

	var buf bytes.Buffer
	n, err := svc.Statement(context.Background(), &buf, demo.ID, ledger.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "own demo entries are listed")
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
