package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Report windows

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"credit_ledger/internal/adjust"    // Manual adjustments
	"credit_ledger/internal/domain"    // Importing domain models
	"credit_ledger/internal/ledger"    // Report filters
	"credit_ledger/internal/money"     // Amount types
	"credit_ledger/internal/provision" // Seeding
	"credit_ledger/internal/purchase"  // Refunds
	"credit_ledger/internal/report"    // Finance exports
	"credit_ledger/internal/voucher"   // Voucher issuing
)

// currentActor returns the actor stored by RequireRoles
func currentActor(c *gin.Context) domain.Actor {
	if a, ok := c.Get("actor"); ok {
		if actor, ok := a.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{} // Empty role, rejected by every service
}

// AdjustRequest grants (positive) or deducts (negative) credits
type AdjustRequest struct {
	UserID uint          `json:"userId" binding:"required"` // Target user
	Amount money.Credits `json:"amount" binding:"required"` // Signed amount
}

// AdjustHandler applies a manual balance adjustment
func AdjustHandler(adjustments *adjust.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdjustRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		w, err := adjustments.Adjust(c.Request.Context(), currentActor(c), req.UserID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": w})
	}
}

// CreateDemoAccountHandler registers a seeded demo employee
func CreateDemoAccountHandler(seeder *provision.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		if msg := validateCredentials(req.Username, req.Password); msg != "" {
			badRequest(c, msg)
			return
		}
		user, seed, err := seeder.CreateDemoAccount(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		logrus.WithFields(logrus.Fields{"actor_id": currentActor(c).ID, "user_id": user.ID}).Info("Demo account created")
		c.JSON(http.StatusCreated, gin.H{"user": user, "wallet": seed.Wallet})
	}
}

// CompanySeedRequest provisions a company-funded opening balance
type CompanySeedRequest struct {
	UserID uint          `json:"userId" binding:"required"`      // Target user
	Amount money.Credits `json:"amount" binding:"required,gt=0"` // Opening credits
}

// CompanySeedHandler grants the opening balance once per user
func CompanySeedHandler(seeder *provision.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanySeedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		seed, err := seeder.SeedCompany(c.Request.Context(), req.UserID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": seed.Wallet, "seeded": seed.Seeded})
	}
}

// CreateVoucherRequest issues a voucher; an empty code is generated
type CreateVoucherRequest struct {
	Code    string        `json:"code"`                            // Optional code
	Credits money.Credits `json:"credits" binding:"required,gt=0"` // Value
}

// CreateVoucherHandler issues a single-use voucher
func CreateVoucherHandler(vouchers *voucher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateVoucherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		v, err := vouchers.Create(c.Request.Context(), currentActor(c), req.Code, req.Credits)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"voucher": v})
	}
}

// RefundOrderHandler reverses an order's debits
func RefundOrderHandler(purchases *purchase.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || orderID == 0 {
			badRequest(c, "Invalid order id")
			return
		}
		refunds, err := purchases.Refund(c.Request.Context(), uint(orderID))
		if err != nil {
			respondError(c, err)
			return
		}
		logrus.WithFields(logrus.Fields{"actor_id": currentActor(c).ID, "order_id": orderID, "users": len(refunds)}).Info("Refund issued")
		c.JSON(http.StatusOK, gin.H{"refunds": refunds}) // One entry per refunded user
	}
}

// parseTime accepts RFC3339 or a plain date
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// reportFilter reads from, to and include_demo from the query string
func reportFilter(c *gin.Context) (ledger.Filter, bool) {
	var f ledger.Filter
	if s := c.Query("from"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			badRequest(c, "Invalid from")
			return f, false
		}
		f.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			badRequest(c, "Invalid to")
			return f, false
		}
		f.To = t
	}
	f.IncludeDemo = c.Query("include_demo") == "true" // Demo excluded unless asked
	return f, true
}

// RevenueReportHandler sums cash top-ups
func RevenueReportHandler(reports *report.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := reportFilter(c)
		if !ok {
			return
		}
		summary, err := reports.Revenue(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"revenue": summary, "rate_version": money.CreditRateVersion})
	}
}

// LedgerCSVHandler streams the ledger as CSV
func LedgerCSVHandler(reports *report.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := reportFilter(c)
		if !ok {
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="ledger.csv"`)
		c.Status(http.StatusOK)
		rows, err := reports.LedgerCSV(c.Request.Context(), c.Writer, f)
		if err != nil {
			// Headers are already out, the truncated file is all we can do
			logrus.WithFields(logrus.Fields{"rows": rows, "error": err.Error()}).Error("Ledger export failed")
			return
		}
		logrus.WithFields(logrus.Fields{"actor_id": currentActor(c).ID, "rows": rows}).Info("Ledger exported")
	}
}

// BalancesReportHandler lists stored wallet balances
func BalancesReportHandler(reports *report.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := reports.Balances(c.Request.Context(), c.Query("include_demo") == "true")
		if err != nil {
			respondError(c, err)
			return
		}
		var total money.Credits
		for _, b := range list {
			total += b.Balance
		}
		if list == nil {
			list = []report.Balance{}
		}
		c.JSON(http.StatusOK, gin.H{"balances": list, "total": total})
	}
}
