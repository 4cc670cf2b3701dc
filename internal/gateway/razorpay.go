// Package gateway talks to Razorpay: order creation, payment lookup and
// signature checks on callbacks and webhooks.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/razorpay/razorpay-go"
	"github.com/sirupsen/logrus"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/money"
)

// StatusCaptured is the only payment status that authorizes a credit.
const StatusCaptured = "captured"

// RemoteOrder is an order as the gateway reports it.
type RemoteOrder struct {
	ID       string      `json:"id"`
	Status   string      `json:"status"`
	Amount   money.Paise `json:"amount"`
	Currency string      `json:"currency"`
	Receipt  string      `json:"receipt"`
}

// PaymentStatus is the gateway's view of one payment.
type PaymentStatus struct {
	ID      string
	Status  string
	OrderID string
	Amount  money.Paise
}

// Captured reports whether the payment has been captured.
func (p PaymentStatus) Captured() bool {
	return p.Status == StatusCaptured
}

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay is the payment gateway adapter.
type Razorpay struct {
	orders        orderAPI
	payments      paymentAPI
	keyID         string
	keySecret     string
	webhookSecret string
	timeout       time.Duration
}

// NewRazorpay builds an adapter bounded by timeout per gateway call.
func NewRazorpay(keyID, keySecret, webhookSecret string, timeout time.Duration) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{
		orders:        client.Order,
		payments:      client.Payment,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		timeout:       timeout,
	}
}

// KeyID is the public key the checkout widget needs.
func (r *Razorpay) KeyID() string {
	return r.keyID
}

// CreateOrder creates an auto-capturing order for amount minor units.
func (r *Razorpay) CreateOrder(ctx context.Context, amount money.Paise, currency, receipt string) (RemoteOrder, error) {
	body, err := r.call(ctx, "create_order", func() (map[string]interface{}, error) {
		return r.orders.Create(map[string]interface{}{
			"amount":          int64(amount),
			"currency":        currency,
			"receipt":         receipt,
			"payment_capture": 1,
		}, nil)
	})
	if err != nil {
		return RemoteOrder{}, err
	}

	order := RemoteOrder{
		ID:       str(body["id"]),
		Status:   str(body["status"]),
		Amount:   paise(body["amount"]),
		Currency: str(body["currency"]),
		Receipt:  str(body["receipt"]),
	}
	if order.ID == "" {
		logrus.WithField("op", "create_order").Error("gateway returned an order without id")
		return RemoteOrder{}, fmt.Errorf("create order: %w", domain.ErrGatewayUnavailable)
	}
	return order, nil
}

// FetchPaymentStatus asks the gateway directly what happened to a payment.
func (r *Razorpay) FetchPaymentStatus(ctx context.Context, paymentID string) (PaymentStatus, error) {
	body, err := r.call(ctx, "fetch_payment", func() (map[string]interface{}, error) {
		return r.payments.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return PaymentStatus{}, err
	}
	return PaymentStatus{
		ID:      str(body["id"]),
		Status:  str(body["status"]),
		OrderID: str(body["order_id"]),
		Amount:  paise(body["amount"]),
	}, nil
}

// VerifySignature checks the checkout callback signature, an HMAC-SHA256 of
// "orderID|paymentID" keyed with the API secret.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return verify(r.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhook checks the X-Razorpay-Signature of a raw webhook body.
func (r *Razorpay) VerifyWebhook(body []byte, signature string) bool {
	return verify(r.webhookSecret, body, signature)
}

// Sign computes the callback signature. Used by tests and local tooling.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// call runs a blocking client call under the adapter timeout. The client has no
// context support, so an abandoned call finishes in the background and its
// result is dropped; callers re-query status instead of assuming an outcome.
func (r *Razorpay) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logrus.WithFields(logrus.Fields{"op": op, "error": res.err.Error()}).Error("gateway call failed")
			return nil, fmt.Errorf("%s: %w", op, domain.ErrGatewayUnavailable)
		}
		return res.body, nil
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{"op": op, "error": ctx.Err().Error()}).Warn("gateway call abandoned")
		return nil, fmt.Errorf("%s: %w", op, domain.ErrGatewayUnavailable)
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func paise(v interface{}) money.Paise {
	switch n := v.(type) {
	case float64:
		return money.Paise(n)
	case int:
		return money.Paise(n)
	case int64:
		return money.Paise(n)
	case json.Number:
		i, _ := n.Int64()
		return money.Paise(i)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return money.Paise(i)
	}
	return 0
}
