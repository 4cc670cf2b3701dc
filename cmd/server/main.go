package main

import (
	"context"   // Redis ping and shutdown deadline
	"errors"    // Server close detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal notification
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging

	"credit_ledger/internal/adjust"     // Manual adjustments
	"credit_ledger/internal/api"        // HTTP handlers
	"credit_ledger/internal/config"     // Configuration
	"credit_ledger/internal/db"         // Database
	"credit_ledger/internal/gateway"    // Razorpay client
	"credit_ledger/internal/ledger"     // Ledger store
	"credit_ledger/internal/middleware" // Request middleware
	"credit_ledger/internal/notify"     // Notifications
	"credit_ledger/internal/provision"  // Seeding
	"credit_ledger/internal/purchase"   // Order debits
	"credit_ledger/internal/report"     // Finance exports
	"credit_ledger/internal/topup"      // Reconciliation engine
	"credit_ledger/internal/voucher"    // Vouchers
	"credit_ledger/internal/wallet"     // Wallets
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	conn, err := db.Open(cfg.Database())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Redis is optional: without it reads are uncached and notifications only logged
	var (
		redisClient *redis.Client
		notifier    notify.Notifier = notify.LogNotifier{}
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		notifier = notify.NewRedisNotifier(redisClient, cfg.NotifyChannel)
	}

	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		logrus.Warn("Razorpay credentials missing, top-ups will fail")
	}
	gw := gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, cfg.GatewayTimeout)

	dispatcher := notify.NewDispatcher(notifier, 5*time.Second)
	wallets := wallet.NewRepository(conn, redisClient, cfg.CacheTTL)
	entries := ledger.NewStore(conn)
	poster := wallet.NewPoster(wallets, entries)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.Register(r, api.Deps{
		DB:        conn,
		Redis:     redisClient,
		CacheTTL:  cfg.CacheTTL,
		JWTSecret: cfg.JWTSecret,
		Wallets:   wallets,
		Ledger:    entries,
		TopUps:    topup.NewService(conn, gw, poster, wallets, dispatcher, cfg.Currency),
		Adjust:    adjust.NewService(conn, poster, wallets, dispatcher),
		Provision: provision.NewService(conn, wallets, entries, poster, dispatcher),
		Purchases: purchase.NewService(conn, wallets, entries, poster, dispatcher),
		Vouchers:  voucher.NewService(conn, poster, wallets, dispatcher),
		Reports:   report.NewService(conn, entries),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal, then drain requests and pending notifications
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("shutdown: %v", err)
	}
	dispatcher.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logrus.Info("Server stopped")
}
