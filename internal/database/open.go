package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/cardflow/config"
	"github.com/BaSui01/cardflow/llm/retry"
)

// Dialector 根据驱动名选择 GORM 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite":
		// 纯 Go 实现，无需 cgo
		return sqlite.Open(cfg.DSN()), nil
	case "":
		return nil, fmt.Errorf("database driver not configured")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}
}

// Open 打开数据库连接，连接失败按 ConnectRetries 退避重试
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.ConnectRetries
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("数据库连接失败，稍后重试",
			zap.String("driver", cfg.Driver),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	db, err := retry.Do(ctx, retry.NewBackoff(policy, logger), func(ctx context.Context) (*gorm.DB, error) {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 单写者，内存库每个连接互相独立
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	applyPool(sqlDB, PoolConfigFrom(cfg))

	logger.Info("Database connected", zap.String("driver", cfg.Driver))
	return db, nil
}
