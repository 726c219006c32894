// persistence/sql_journal.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	_ "modernc.org/sqlite"

	"github.com/wfunc/storyserver/models"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

var actionColumns = []string{
	"session_id", "participant_id", "speaker", "action", "outcome", "story", "error", "created_at",
}

var tradeColumns = []string{
	"session_id", "participant_id", "side", "qty", "price", "cash", "shares", "outcome", "created_at",
}

// SQLJournal writes records with database/sql, on PostgreSQL (lib/pq) or SQLite (modernc).
type SQLJournal struct {
	dialect string
	db      *sql.DB
}

func NewSQLJournal(dialect, dsn string) (*SQLJournal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s journal requires a dsn", dialect)
	}
	switch dialect {
	case dialectPostgres, dialectSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s journal: %w", dialect, err)
	}

	j := &SQLJournal{dialect: dialect, db: db}
	if err := j.initTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// initTables 初始化数据库表结构
func (j *SQLJournal) initTables(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if j.dialect == dialectPostgres {
		id = "SERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS action_records (
            id ` + id + `,
            session_id VARCHAR(255) NOT NULL,
            participant_id VARCHAR(255) NOT NULL,
            speaker VARCHAR(255) NOT NULL,
            action TEXT NOT NULL,
            outcome VARCHAR(32) NOT NULL,
            story TEXT,
            error TEXT,
            created_at TIMESTAMP NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS trade_records (
            id ` + id + `,
            session_id VARCHAR(255) NOT NULL,
            participant_id VARCHAR(255) NOT NULL,
            side VARCHAR(8) NOT NULL,
            qty BIGINT NOT NULL,
            price DOUBLE PRECISION NOT NULL,
            cash NUMERIC NOT NULL,
            shares BIGINT NOT NULL,
            outcome VARCHAR(32) NOT NULL,
            created_at TIMESTAMP NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_action_records_participant ON action_records(participant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_participant ON trade_records(participant_id)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s journal: %w", j.dialect, err)
		}
	}
	return nil
}

func (j *SQLJournal) bind(pos int) string {
	if j.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (j *SQLJournal) insertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = j.bind(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(ph, ", "),
	)
}

func (j *SQLJournal) RecordAction(ctx context.Context, r models.ActionRecord) error {
	_, err := j.db.ExecContext(ctx, j.insertQuery("action_records", actionColumns),
		r.SessionID, r.ParticipantID, r.Speaker, r.Action, r.Outcome, r.Story, r.Error, r.CreatedAt.UTC())
	return err
}

func (j *SQLJournal) RecordTrade(ctx context.Context, r models.TradeRecord) error {
	if r.Cash == "" {
		return errors.New("trade record without cash balance")
	}
	_, err := j.db.ExecContext(ctx, j.insertQuery("trade_records", tradeColumns),
		r.SessionID, r.ParticipantID, r.Side, r.Qty, r.Price, r.Cash, r.Shares, r.Outcome, r.CreatedAt.UTC())
	return err
}

func (j *SQLJournal) Close() error {
	return j.db.Close()
}
