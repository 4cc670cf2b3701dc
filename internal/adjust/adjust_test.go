package adjust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"credit_ledger/internal/adjust"
	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/wallet"
)

type recorder struct {
	events chan notify.Event
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.events <- ev
	return nil
}

func setup(t *testing.T) (*gorm.DB, *adjust.Service, *recorder) {
	t.Helper()
	conn := dbtest.Open(t)
	wallets := wallet.NewRepository(conn, nil, time.Minute)
	rec := &recorder{events: make(chan notify.Event, 8)}
	svc := adjust.NewService(conn, wallet.NewPoster(wallets, ledger.NewStore(conn)), wallets, notify.NewDispatcher(rec, time.Second))
	return conn, svc, rec
}

func user(t *testing.T, conn *gorm.DB, name string, role domain.Role) domain.User {
	t.Helper()
	u := domain.User{Username: name, Password: "x", Role: role}
	require.NoError(t, conn.Create(&u).Error)
	return u
}

func TestAdjustGrantAndDeduct(t *testing.T) {
	conn, svc, rec := setup(t)
	hr := user(t, conn, "hr", domain.RoleHR)
	emp := user(t, conn, "emp", domain.RoleEmployee)
	actor := domain.Actor{ID: hr.ID, Role: hr.Role}

	w, err := svc.Adjust(context.Background(), actor, emp.ID, 300)
	require.NoError(t, err)
	assert.Equal(t, money.Credits(300), w.Balance)

	w, err = svc.Adjust(context.Background(), actor, emp.ID, -120)
	require.NoError(t, err)
	assert.Equal(t, money.Credits(180), w.Balance)

	var entries []domain.LedgerEntry
	require.NoError(t, conn.Where("user_id = ?", emp.ID).Order("id").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TxAdminGrant, entries[0].TransactionType)
	assert.True(t, entries[0].IsCredit)
	assert.Equal(t, domain.TxAdminDeduct, entries[1].TransactionType)
	assert.False(t, entries[1].IsCredit)
	assert.Equal(t, money.Credits(120), entries[1].Amount)
	assert.Equal(t, domain.ModeCredit, entries[1].ModeOfPayment)

	first := <-rec.events
	assert.Equal(t, emp.ID, first.UserID)
	assert.Equal(t, money.Credits(300), first.Amount)
}

func TestAdjustEmployeeIsForbidden(t *testing.T) {
	conn, svc, _ := setup(t)
	emp := user(t, conn, "emp", domain.RoleEmployee)
	other := user(t, conn, "other", domain.RoleEmployee)

	for _, amount := range []money.Credits{1, -1, 1000000} {
		_, err := svc.Adjust(context.Background(), domain.Actor{ID: emp.ID, Role: emp.Role}, other.ID, amount)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	}
	_, err := svc.Adjust(context.Background(), domain.Actor{ID: emp.ID, Role: emp.Role}, emp.ID, 50)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	var n int64
	require.NoError(t, conn.Model(&domain.LedgerEntry{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAdjustDeductBelowZero(t *testing.T) {
	conn, svc, _ := setup(t)
	admin := user(t, conn, "admin", domain.RoleAdmin)
	emp := user(t, conn, "emp", domain.RoleEmployee)
	actor := domain.Actor{ID: admin.ID, Role: admin.Role}

	_, err := svc.Adjust(context.Background(), actor, emp.ID, 50)
	require.NoError(t, err)
	_, err = svc.Adjust(context.Background(), actor, emp.ID, -51)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var w domain.Wallet
	require.NoError(t, conn.Where("user_id = ?", emp.ID).First(&w).Error)
	assert.Equal(t, money.Credits(50), w.Balance)
}

func TestAdjustValidation(t *testing.T) {
	conn, svc, _ := setup(t)
	admin := user(t, conn, "admin", domain.RoleAdmin)
	actor := domain.Actor{ID: admin.ID, Role: admin.Role}

	_, err := svc.Adjust(context.Background(), actor, admin.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Adjust(context.Background(), actor, 9999, 10)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
