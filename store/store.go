package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/uibridge/uibridge/config"
)

// Exchange is one archived prompt/reply round trip.
type Exchange struct {
	ID           uint   `gorm:"primaryKey"`
	Conversation string `gorm:"index;size:128"`
	RemoteID     string `gorm:"size:64"`
	Model        string `gorm:"size:64"`
	Prompt       string `gorm:"type:text"`
	Reply        string `gorm:"type:text"`

	PromptTokens     int
	CompletionTokens int

	DurationMS int64
	CreatedAt  time.Time
}

// TranscriptStore archives exchanges.
type TranscriptStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database and migrates the schema.
// Returns (nil, nil) when no driver is configured: archiving is off.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*TranscriptStore, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&Exchange{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	logger.Info("transcript archive opened", zap.String("driver", cfg.Driver))
	return &TranscriptStore{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Record archives one exchange.
func (s *TranscriptStore) Record(ctx context.Context, ex *Exchange) error {
	if err := s.db.WithContext(ctx).Create(ex).Error; err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// ByConversation returns the most recent exchanges of a conversation,
// newest first. limit <= 0 means no limit.
func (s *TranscriptStore) ByConversation(ctx context.Context, conversation string, limit int) ([]Exchange, error) {
	q := s.db.WithContext(ctx).
		Where("conversation = ?", conversation).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []Exchange
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection, for health checks.
func (s *TranscriptStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *TranscriptStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
