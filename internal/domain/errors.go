package domain

import (
	"errors"

	"credit_ledger/internal/money"
)

// Errors shared by every component that touches balances. The api package maps
// them onto HTTP status codes.
var (
	ErrMalformedCallback   = errors.New("malformed payment callback")
	ErrSignatureMismatch   = errors.New("payment signature mismatch")
	ErrUnknownOrder        = errors.New("unknown payment order")
	ErrPaymentNotCaptured  = errors.New("payment not captured")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = money.ErrInvalidAmount
	ErrUserNotFound        = errors.New("user not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrVoucherUnavailable  = errors.New("voucher not found or already redeemed")
	ErrAlreadyRefunded     = errors.New("order already refunded")
	ErrNothingToRefund     = errors.New("order has no debits to refund")
)
