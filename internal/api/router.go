package api

import (
	"time" // Cache durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library

	"credit_ledger/internal/adjust"     // Manual adjustments
	"credit_ledger/internal/domain"     // Roles
	"credit_ledger/internal/ledger"     // Ledger reads
	"credit_ledger/internal/middleware" // Auth and request middleware
	"credit_ledger/internal/provision"  // Seeding
	"credit_ledger/internal/purchase"   // Order debits and refunds
	"credit_ledger/internal/report"     // Finance exports
	"credit_ledger/internal/topup"      // Reconciliation engine
	"credit_ledger/internal/voucher"    // Vouchers
	"credit_ledger/internal/wallet"     // Wallet reads
)

// Deps are the collaborators the HTTP layer routes to
type Deps struct {
	DB        *gorm.DB           // Database handle for auth and role checks
	Redis     *redis.Client      // Optional cache
	CacheTTL  time.Duration      // TTL of cached reads
	JWTSecret string             // Token signing secret
	Wallets   *wallet.Repository // Wallet reads
	Ledger    *ledger.Store      // Ledger reads
	TopUps    *topup.Service     // Gateway top-ups
	Adjust    *adjust.Service    // Manual adjustments
	Provision *provision.Service // Seeding
	Purchases *purchase.Service  // Order debits
	Vouchers  *voucher.Service   // Vouchers
	Reports   *report.Service    // Finance exports
}

// Register mounts every route on r
func Register(r gin.IRouter, d Deps) {
	// Auth routes
	r.POST("/auth/register", RegisterHandler(d.DB))                // Registration endpoint
	r.POST("/auth/login", LoginHandler(d.DB, d.JWTSecret))         // Login endpoint
	r.POST("/webhooks/razorpay", RazorpayWebhookHandler(d.TopUps)) // Signed by the gateway, no JWT

	// Wallet routes (protected by JWT)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret))
	walletGroup.GET("", GetWalletHandler(d.Wallets))                                           // Balance
	walletGroup.GET("/transactions", TransactionHistoryHandler(d.Ledger, d.Redis, d.CacheTTL)) // Ledger history
	walletGroup.POST("/topups", CreateTopUpHandler(d.TopUps))                                  // Start a top-up
	walletGroup.POST("/topups/verify", VerifyTopUpHandler(d.TopUps))                           // Checkout callback
	walletGroup.POST("/vouchers/redeem", RedeemVoucherHandler(d.Vouchers))                     // Redeem a voucher
	walletGroup.POST("/orders/:id/debit", DebitOrderHandler(d.Purchases))                      // Pay for an order
	walletGroup.GET("/statement.pdf", StatementHandler(d.Reports))                             // PDF statement

	// Admin routes (protected, ADMIN or HR as stored in the database)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.RequireRoles(d.DB, domain.RoleAdmin, domain.RoleHR))
	adminGroup.POST("/adjust", AdjustHandler(d.Adjust))                      // Grant or deduct
	adminGroup.POST("/demo-accounts", CreateDemoAccountHandler(d.Provision)) // Demo account
	adminGroup.POST("/company-seed", CompanySeedHandler(d.Provision))        // Opening balance
	adminGroup.POST("/vouchers", CreateVoucherHandler(d.Vouchers))           // Issue voucher
	adminGroup.POST("/orders/:id/refund", RefundOrderHandler(d.Purchases))   // Refund order
	adminGroup.GET("/reports/revenue", RevenueReportHandler(d.Reports))      // Cash revenue
	adminGroup.GET("/reports/ledger.csv", LedgerCSVHandler(d.Reports))       // Ledger export
	adminGroup.GET("/reports/balances", BalancesReportHandler(d.Reports))    // Wallet balances
}
