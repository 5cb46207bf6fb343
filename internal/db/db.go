package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"questlog/internal/models"
)

// Init 连接 PostgreSQL 并执行自动迁移
// 启动时数据库可能还没就绪，连接失败会按指数退避重试
func Init(ctx context.Context, dsn string, log *zap.Logger) (*gorm.DB, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	var gdb *gorm.DB
	err := backoff.RetryNotify(func() error {
		var err error
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			// 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Warn),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		return err
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("next_attempt", next))
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	log.Info("Database connection established")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	log.Info("Database migration completed")

	return gdb, nil
}

// Migrate creates or updates every table the application uses.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.User{},
		&models.UserGame{},
		&models.Review{},
		&models.Reply{},
		&models.Vote{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
