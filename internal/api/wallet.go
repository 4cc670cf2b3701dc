package api

import (
	"bytes"         // PDF buffer
	"encoding/json" // Amounts arrive as numbers or strings
	"errors"        // Sentinel matching
	"net/http"      // HTTP status codes
	"strconv"       // String conversion
	"strings"       // String manipulation
	"time"          // Cache durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library

	"credit_ledger/internal/domain"   // Importing domain models
	"credit_ledger/internal/ledger"   // Ledger history
	"credit_ledger/internal/money"    // Amount types
	"credit_ledger/internal/purchase" // Order debits
	"credit_ledger/internal/report"   // Statements
	"credit_ledger/internal/topup"    // Reconciliation engine
	"credit_ledger/internal/utils"    // Utility functions
	"credit_ledger/internal/voucher"  // Voucher redemption
	"credit_ledger/internal/wallet"   // Wallet reads
)

// currentUserID returns the authenticated user, aborting with 401 if absent
func currentUserID(c *gin.Context) (uint, bool) {
	id, ok := c.Get("userID") // Set by JWTAuthMiddleware
	uid, isUint := id.(uint)
	if !ok || !isUint || uid == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "Unauthorized"})
		return 0, false
	}
	return uid, true
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(wallets *wallet.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		w, cached, err := wallets.Get(c.Request.Context(), userID) // Served from Redis when warm
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": cached})
	}
}

// historyPage is the cached shape of one history page
type historyPage struct {
	Entries    []domain.LedgerEntry `json:"entries"`     // Ledger entries, newest first
	Page       int                  `json:"page"`        // Current page
	PageSize   int                  `json:"page_size"`   // Page size
	Total      int64                `json:"total"`       // Total entries
	TotalPages int                  `json:"total_pages"` // Total pages
	Cached     bool                 `json:"cached"`      // Served from cache
}

// TransactionHistoryHandler returns the authenticated user's ledger, paginated
func TransactionHistoryHandler(entries *ledger.Store, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		page := 1                          // Default page
		pageSize := ledger.DefaultPageSize // Default page size
		if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
			page = v
		}
		if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= ledger.MaxPageSize {
			pageSize = v
		}
		// A user always sees their own demo activity
		f := ledger.Filter{IncludeDemo: true, PageSize: pageSize}
		if t := c.Query("type"); t != "" {
			for _, part := range strings.Split(t, ",") {
				f.Types = append(f.Types, domain.TransactionType(strings.ToUpper(strings.TrimSpace(part))))
			}
		}

		ctx := c.Request.Context()
		cacheKey := utils.HistoryKey(userID, page, pageSize)
		cacheable := len(f.Types) == 0 // Only unfiltered pages are cached
		if cacheable {
			var cached historyPage
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				cached.Cached = true
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		list, total, err := entries.Page(ctx, userID, f, page)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := historyPage{
			Entries:    list,
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		}
		if resp.Entries == nil {
			resp.Entries = []domain.LedgerEntry{}
		}
		if cacheable {
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, ttl)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// CreateTopUpRequest starts a gateway top-up. Amount is in rupees.
type CreateTopUpRequest struct {
	Amount json.Number `json:"amount" binding:"required"` // Rupees, at most two decimals
	IsCash *bool       `json:"isCash"`                    // Must be true or omitted
}

// CreateTopUpHandler opens a gateway order for the authenticated user
func CreateTopUpHandler(topups *topup.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req CreateTopUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		// Credits can only be bought with cash through the gateway
		if req.IsCash != nil && !*req.IsCash {
			badRequest(c, "Top-ups must be paid in cash")
			return
		}
		amount, err := money.ParsePaise(req.Amount.String())
		if err != nil {
			respondError(c, err)
			return
		}
		order, err := topups.CreateOrder(c.Request.Context(), userID, amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"order":           order.TopUp,                         // Stored top-up
			"razorpayOrderId": order.TopUp.RazorpayOrderID,         // Handed to checkout
			"amount":          order.TopUp.Amount,                  // Paise
			"credits":         money.ToCredits(order.TopUp.Amount), // Credits once paid
			"currency":        order.Currency,                      // Currency code
			"key":             order.Key,                           // Public key id
		})
	}
}

// VerifyTopUpRequest is the checkout callback payload
type VerifyTopUpRequest struct {
	PaymentID string `json:"paymentId"` // Gateway payment id
	OrderID   string `json:"orderId"`   // Gateway order id
	Signature string `json:"signature"` // HMAC over order and payment ids
}

// VerifyTopUpHandler settles a checkout callback
func VerifyTopUpHandler(topups *topup.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req VerifyTopUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, domain.ErrMalformedCallback)
			return
		}
		res, err := topups.Verify(c.Request.Context(), userID, topup.Callback{
			PaymentID: req.PaymentID,
			OrderID:   req.OrderID,
			Signature: req.Signature,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":          true,                 // Payment accounted for
			"walletBalance":    res.Balance,          // Balance after settlement
			"credited":         res.Credited,         // Zero on replays
			"alreadyProcessed": res.AlreadyProcessed, // Replay of a settled order
		})
	}
}

// RazorpayWebhookHandler settles gateway-initiated notifications
func RazorpayWebhookHandler(topups *topup.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			respondError(c, domain.ErrMalformedCallback)
			return
		}
		res, err := topups.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Razorpay-Signature"))
		switch {
		case errors.Is(err, domain.ErrUnknownOrder):
			// Orders not created here are acknowledged so the gateway stops retrying
			logrus.WithField("request_id", c.GetString("request_id")).Warn("Webhook for unknown order")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case err != nil:
			respondError(c, err)
		case res.Ignored:
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case res.AlreadyProcessed:
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "credited"})
		}
	}
}

// RedeemVoucherRequest carries a voucher code
type RedeemVoucherRequest struct {
	Code string `json:"code" binding:"required"` // Voucher code
}

// RedeemVoucherHandler credits a voucher to the authenticated user
func RedeemVoucherHandler(vouchers *voucher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req RedeemVoucherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		res, err := vouchers.Redeem(c.Request.Context(), userID, req.Code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": res.Wallet, "entry": res.Entry})
	}
}

// DebitOrderRequest charges credits for a marketplace order
type DebitOrderRequest struct {
	Amount money.Credits          `json:"amount" binding:"required,gt=0"` // Credits to charge
	Type   domain.TransactionType `json:"type"`                           // DEBIT or BUNDLE_PURCHASE
}

// DebitOrderHandler charges the authenticated user's wallet for an order
func DebitOrderHandler(purchases *purchase.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || orderID == 0 {
			badRequest(c, "Invalid order id")
			return
		}
		var req DebitOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		res, err := purchases.Debit(c.Request.Context(), userID, uint(orderID), req.Amount, req.Type)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": res.Wallet, "entry": res.Entry})
	}
}

// StatementHandler renders the authenticated user's ledger as a PDF
func StatementHandler(reports *report.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		f, ok := reportFilter(c)
		if !ok {
			return
		}
		var buf bytes.Buffer // Rendered fully before any header goes out
		if _, err := reports.Statement(c.Request.Context(), &buf, userID, f); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="statement.pdf"`)
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
	}
}
