// Package mysql opens the gorm handle backing users, conversations,
// messages, and passages.
package mysql

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Passage searches load whole embedding sets per user, so the pool
// leans toward fewer, longer-lived connections.
const (
	maxOpenConns    = 50
	maxIdleConns    = 10
	connMaxLifetime = time.Hour
	connMaxIdleTime = 30 * time.Minute

	pingTimeout       = 3 * time.Second
	slowQueryWarnOver = 500 * time.Millisecond
)

// New opens and pings a MySQL handle. The handle is shared for the
// process lifetime; callers close it through the underlying sql.DB.
func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger: logger.New(log.New(os.Stdout, "", log.LstdFlags), logger.Config{
			SlowThreshold: slowQueryWarnOver,
			LogLevel:      logger.Warn,
		}),
	}
	db, err := gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open mysql failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get mysql sql db failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping mysql failed: %w", err)
	}
	return db, nil
}
