// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/storyserver/models"
)

// GormJournal 使用GORM的PostgreSQL实现
type GormJournal struct {
	db *gorm.DB
}

// NewGormJournal opens a PostgreSQL journal through GORM and migrates its tables.
func NewGormJournal(dsn string) (*GormJournal, error) {
	if dsn == "" {
		return nil, errors.New("gorm journal requires a dsn")
	}

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}
	return newGormJournal(db)
}

func newGormJournal(db *gorm.DB) (*GormJournal, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer drains the async queue; a small pool is enough.
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormActionRecord{}, &models.GormTradeRecord{}); err != nil {
		return nil, err
	}
	return &GormJournal{db: db}, nil
}

func (p *GormJournal) RecordAction(ctx context.Context, record models.ActionRecord) error {
	return p.db.WithContext(ctx).Create(models.NewGormActionRecord(record)).Error
}

func (p *GormJournal) RecordTrade(ctx context.Context, record models.TradeRecord) error {
	return p.db.WithContext(ctx).Create(models.NewGormTradeRecord(record)).Error
}

// Close 关闭数据库连接
func (p *GormJournal) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
