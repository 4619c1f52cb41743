package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/retry"
)

// Open connects to MySQL and verifies the connection.  The handle is
// owned by the caller and must be closed on shutdown.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenRetry calls Open until it succeeds or strategy gives up.  Binaries
// use it at startup while MySQL may still be coming up.
func OpenRetry(ctx context.Context, cfg config.DBConfig, strategy retry.Strategy, log *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	err := strategy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		db, err = Open(ctx, cfg)
		if err != nil {
			log.Warn("database not ready", zap.Int("attempt", attempt), zap.String("addr", cfg.Host+":"+cfg.Port), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}
