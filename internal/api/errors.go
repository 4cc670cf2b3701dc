package api

import (
	"errors"   // Sentinel matching
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"credit_ledger/internal/domain"    // Domain errors
	"credit_ledger/internal/provision" // Username conflicts
	"credit_ledger/internal/voucher"   // Voucher conflicts
)

// errorStatus maps a domain error onto a status code and a stable error code
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrMalformedCallback, http.StatusBadRequest, "MalformedCallback"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{domain.ErrSignatureMismatch, http.StatusUnauthorized, "SignatureMismatch"},
	{domain.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{domain.ErrUnknownOrder, http.StatusNotFound, "UnknownOrder"},
	{domain.ErrUserNotFound, http.StatusNotFound, "UserNotFound"},
	{domain.ErrWalletNotFound, http.StatusNotFound, "WalletNotFound"},
	{domain.ErrPaymentNotCaptured, http.StatusConflict, "PaymentNotCaptured"},
	{domain.ErrInsufficientBalance, http.StatusConflict, "InsufficientBalance"},
	{domain.ErrVoucherUnavailable, http.StatusConflict, "VoucherUnavailable"},
	{domain.ErrAlreadyRefunded, http.StatusConflict, "AlreadyRefunded"},
	{domain.ErrNothingToRefund, http.StatusConflict, "NothingToRefund"},
	{voucher.ErrCodeTaken, http.StatusConflict, "VoucherCodeTaken"},
	{provision.ErrUsernameTaken, http.StatusConflict, "UsernameTaken"},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, "GatewayUnavailable"},
}

// respondError writes the JSON error for err. Unknown errors become a generic
// 500 and their detail only goes to the log.
func respondError(c *gin.Context, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.err.Error(), "code": m.code})
			return
		}
	}
	logrus.WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"request_id": c.GetString("request_id"),
		"error":      err.Error(),
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "InternalError"})
}

// badRequest rejects a request that failed binding
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "InvalidRequest"})
}
