package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"
)

// Settings describe how to reach MySQL
type Settings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Debug    bool
}

// DSN builds the MySQL data source name
func (s Settings) DSN() string {
	return s.User + ":" + s.Password + "@tcp(" + s.Host + ":" + s.Port + ")/" + s.Name + "?parseTime=true&loc=UTC"
}

// Open connects to MySQL and configures the pool
func Open(s Settings) (*gorm.DB, error) {
	level := logger.Warn
	if s.Debug {
		level = logger.Info
	}
	conn, err := gorm.Open(mysql.Open(s.DSN()), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

// Tx is a handle on an open database transaction. Functions that must never
// run outside a transaction take a *Tx, and the only way to get one is Atomic.
type Tx struct {
	db *gorm.DB
}

// DB returns the transaction-bound gorm handle
func (t *Tx) DB() *gorm.DB {
	return t.db
}

// Context returns the context the transaction was started with
func (t *Tx) Context() context.Context {
	return t.db.Statement.Context
}

// Atomic runs fn inside a single database transaction. Returning an error from
// fn, or panicking, rolls back everything fn wrote.
func Atomic(ctx context.Context, conn *gorm.DB, fn func(tx *Tx) error) error {
	return conn.WithContext(ctx).Transaction(func(g *gorm.DB) error {
		return fn(&Tx{db: g})
	})
}
