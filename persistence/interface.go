// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/storyserver/config"
	"github.com/wfunc/storyserver/models"
)

// Journal 日志接口: an append-only audit trail. Nothing reads it back.
type Journal interface {
	RecordAction(ctx context.Context, record models.ActionRecord) error
	RecordTrade(ctx context.Context, record models.TradeRecord) error
	Close() error
}

// 错误定义
var (
	ErrUnsupportedDriver = errors.New("unsupported journal driver")
	ErrBufferFull        = errors.New("journal buffer full")
	ErrJournalClosed     = errors.New("journal closed")
)

// Nop discards every record.
type Nop struct{}

func (Nop) RecordAction(context.Context, models.ActionRecord) error { return nil }
func (Nop) RecordTrade(context.Context, models.TradeRecord) error   { return nil }
func (Nop) Close() error                                            { return nil }

// Open builds the journal selected by cfg.Driver: none, gorm, postgres or sqlite.
func Open(cfg config.JournalConfig) (Journal, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return Nop{}, nil
	case "gorm":
		return NewGormJournal(cfg.DSN)
	case "postgres":
		return NewSQLJournal(dialectPostgres, cfg.DSN)
	case "sqlite":
		return NewSQLJournal(dialectSQLite, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}
