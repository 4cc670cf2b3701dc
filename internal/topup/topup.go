// Package topup reconciles gateway payments with wallet credits.
//
// A TopUp row shadows one gateway order and moves created -> paid exactly once.
// A callback or webhook credits the wallet only after the signature checks out
// and the gateway itself confirms the payment was captured; replays of an
// already-paid order return the current balance and write nothing.
package topup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"credit_ledger/internal/db"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/gateway"
	"credit_ledger/internal/money"
	"credit_ledger/internal/notify"
	"credit_ledger/internal/utils"
	"credit_ledger/internal/wallet"
)

// Gateway is what the engine needs from the payment provider.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount money.Paise, currency, receipt string) (gateway.RemoteOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
	FetchPaymentStatus(ctx context.Context, paymentID string) (gateway.PaymentStatus, error)
}

// Callback is what the checkout widget hands back after payment.
type Callback struct {
	PaymentID string
	OrderID   string
	Signature string
}

// Order is a freshly created top-up ready for checkout.
type Order struct {
	TopUp    domain.TopUp
	Currency string
	Key      string
}

// Result is the outcome of a verification.
type Result struct {
	Balance          money.Credits
	Credited         money.Credits
	AlreadyProcessed bool
	Ignored          bool
	TopUp            domain.TopUp
}

// Service is the reconciliation engine.
type Service struct {
	conn     *gorm.DB
	gw       Gateway
	poster   *wallet.Poster
	wallets  *wallet.Repository
	notifier *notify.Dispatcher
	currency string
	now      func() time.Time
}

// NewService builds the engine. currency is used for every gateway order.
func NewService(conn *gorm.DB, gw Gateway, poster *wallet.Poster, wallets *wallet.Repository, notifier *notify.Dispatcher, currency string) *Service {
	return &Service{
		conn:     conn,
		gw:       gw,
		poster:   poster,
		wallets:  wallets,
		notifier: notifier,
		currency: currency,
		now:      time.Now,
	}
}

// CreateOrder opens a gateway order for amount and records its shadow row.
func (s *Service) CreateOrder(ctx context.Context, userID uint, amount money.Paise) (Order, error) {
	if amount <= 0 || money.ToCredits(amount) < 1 {
		return Order{}, domain.ErrInvalidAmount
	}

	receipt := "tu_" + uuid.NewString()
	remote, err := s.gw.CreateOrder(ctx, amount, s.currency, receipt)
	if err != nil {
		return Order{}, err
	}

	t := domain.TopUp{
		UserID:          userID,
		RazorpayOrderID: remote.ID,
		Amount:          amount,
		Currency:        s.currency,
		Receipt:         receipt,
		Status:          domain.TopUpCreated,
	}
	if err := s.conn.WithContext(ctx).Create(&t).Error; err != nil {
		return Order{}, fmt.Errorf("store top-up: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"order_id": remote.ID,
		"amount":   int64(amount),
	}).Info("Top-up order created")
	return Order{TopUp: t, Currency: s.currency, Key: s.gw.KeyID()}, nil
}

// Verify handles a checkout callback for userID.
func (s *Service) Verify(ctx context.Context, userID uint, cb Callback) (Result, error) {
	cb.PaymentID = strings.TrimSpace(cb.PaymentID)
	cb.OrderID = strings.TrimSpace(cb.OrderID)
	cb.Signature = strings.TrimSpace(cb.Signature)
	if cb.PaymentID == "" || cb.OrderID == "" || cb.Signature == "" {
		return Result{}, domain.ErrMalformedCallback
	}

	if !s.gw.VerifySignature(cb.OrderID, cb.PaymentID, cb.Signature) {
		utils.SecurityEvent("payment_signature_mismatch", "high", logrus.Fields{
			"user_id":    userID,
			"order_id":   cb.OrderID,
			"payment_id": cb.PaymentID,
		})
		return Result{}, domain.ErrSignatureMismatch
	}

	t, err := s.load(ctx, cb.OrderID)
	if err != nil {
		return Result{}, err
	}
	if t.UserID != userID {
		utils.SecurityEvent("payment_order_owner_mismatch", "medium", logrus.Fields{
			"user_id":  userID,
			"owner_id": t.UserID,
			"order_id": cb.OrderID,
		})
		return Result{}, domain.ErrUnknownOrder
	}
	return s.settle(ctx, t, cb.PaymentID, "callback")
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook handles a gateway-initiated notification. Only payment.captured
// and order.paid events are acted on, the rest are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (Result, error) {
	if !s.gw.VerifyWebhook(body, signature) {
		utils.SecurityEvent("webhook_signature_mismatch", "high", logrus.Fields{"bytes": len(body)})
		return Result{}, domain.ErrSignatureMismatch
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Result{}, domain.ErrMalformedCallback
	}
	if p.Event != "payment.captured" && p.Event != "order.paid" {
		return Result{Ignored: true}, nil
	}
	payment := p.Payload.Payment.Entity
	if payment.ID == "" || payment.OrderID == "" {
		return Result{}, domain.ErrMalformedCallback
	}

	t, err := s.load(ctx, payment.OrderID)
	if err != nil {
		return Result{}, err
	}
	return s.settle(ctx, t, payment.ID, "webhook")
}

// settle credits the wallet for a top-up whose callback has been authenticated.
func (s *Service) settle(ctx context.Context, t domain.TopUp, paymentID, source string) (Result, error) {
	if t.Status == domain.TopUpPaid {
		return s.alreadyProcessed(ctx, t)
	}

	st, err := s.gw.FetchPaymentStatus(ctx, paymentID)
	if err != nil {
		return Result{}, err
	}
	if !st.Captured() {
		return Result{}, fmt.Errorf("%w: status %q", domain.ErrPaymentNotCaptured, st.Status)
	}
	if st.OrderID != t.RazorpayOrderID || st.Amount != t.Amount {
		utils.SecurityEvent("payment_order_mismatch", "high", logrus.Fields{
			"order_id":         t.RazorpayOrderID,
			"payment_id":       paymentID,
			"payment_order_id": st.OrderID,
			"payment_amount":   int64(st.Amount),
			"order_amount":     int64(t.Amount),
		})
		return Result{}, fmt.Errorf("%w: payment belongs to another order", domain.ErrPaymentNotCaptured)
	}

	credits := money.ToCredits(t.Amount)
	var (
		posted wallet.Result
		raced  bool
	)
	paidAt := s.now().UTC()
	err = db.Atomic(ctx, s.conn, func(tx *db.Tx) error {
		res := tx.DB().Model(&domain.TopUp{}).
			Where("id = ? AND status <> ?", t.ID, domain.TopUpPaid).
			Updates(map[string]any{
				"status":              domain.TopUpPaid,
				"razorpay_payment_id": paymentID,
				"paid_at":             paidAt,
			})
		if res.Error != nil {
			return fmt.Errorf("mark top-up paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			raced = true
			return nil
		}

		var err error
		posted, err = s.poster.Post(tx, wallet.Posting{
			UserID:      t.UserID,
			Delta:       credits,
			Mode:        domain.ModeCash,
			Type:        domain.TxCredit,
			CashAmount:  t.Amount,
			Reference:   paymentID,
			RateVersion: money.CreditRateVersion,
		})
		return err
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":    t.UserID,
			"order_id":   t.RazorpayOrderID,
			"payment_id": paymentID,
			"error":      err.Error(),
		}).Error("Top-up credit failed")
		return Result{}, err
	}
	if raced {
		return s.alreadyProcessed(ctx, t)
	}

	t.Status = domain.TopUpPaid
	t.RazorpayPaymentID = paymentID
	t.PaidAt = &paidAt

	s.wallets.Invalidate(ctx, t.UserID)
	s.notifier.After(notify.Event{
		UserID:  t.UserID,
		Type:    domain.TxCredit,
		Amount:  credits,
		Balance: posted.Wallet.Balance,
		EntryID: posted.Entry.ID,
	})
	logrus.WithFields(logrus.Fields{
		"user_id":     t.UserID,
		"order_id":    t.RazorpayOrderID,
		"payment_id":  paymentID,
		"cash_amount": int64(t.Amount),
		"credits":     int64(credits),
		"balance":     int64(posted.Wallet.Balance),
		"source":      source,
	}).Info("Top-up credited")

	return Result{Balance: posted.Wallet.Balance, Credited: credits, TopUp: t}, nil
}

func (s *Service) alreadyProcessed(ctx context.Context, t domain.TopUp) (Result, error) {
	w, err := s.wallets.Current(ctx, t.UserID)
	if err != nil {
		return Result{}, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":  t.UserID,
		"order_id": t.RazorpayOrderID,
	}).Info("Top-up already processed")
	t.Status = domain.TopUpPaid
	return Result{Balance: w.Balance, AlreadyProcessed: true, TopUp: t}, nil
}

func (s *Service) load(ctx context.Context, orderID string) (domain.TopUp, error) {
	var t domain.TopUp
	err := s.conn.WithContext(ctx).Where("razorpay_order_id = ?", orderID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TopUp{}, domain.ErrUnknownOrder
	}
	if err != nil {
		return domain.TopUp{}, fmt.Errorf("load top-up: %w", err)
	}
	return t, nil
}
