package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nulzo/streamchat/internal/store"
	"github.com/nulzo/streamchat/internal/store/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // *sqlx.DB or *sqlx.Tx
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) StreamLogs() store.StreamLogRepository {
	return &streamLogRepo{db: r.executor}
}

type streamLogRepo struct {
	db DB
}

func (r *streamLogRepo) Log(ctx context.Context, log *model.StreamLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	query := `
	INSERT INTO stream_logs (
		id, provider, model, status,
		fragments, characters, history_turns,
		first_fragment_ms, duration_ms,
		upstream_status, error_message, created_at
	) VALUES (
		:id, :provider, :model, :status,
		:fragments, :characters, :history_turns,
		:first_fragment_ms, :duration_ms,
		:upstream_status, :error_message, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

func (r *streamLogRepo) GetByID(ctx context.Context, id string) (*model.StreamLog, error) {
	var log model.StreamLog
	err := r.db.GetContext(ctx, &log, `SELECT * FROM stream_logs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stream log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *streamLogRepo) GetRecent(ctx context.Context, limit int) ([]model.StreamLog, error) {
	logs := []model.StreamLog{}
	query := `SELECT * FROM stream_logs ORDER BY created_at DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &logs, query, limit)
	return logs, err
}

func (r *streamLogRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	stats := []model.DailyStats{}
	query := `
		SELECT
			DATE(created_at) AS date,
			provider,
			COUNT(*) AS streams,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN status = 'canceled' THEN 1 ELSE 0 END) AS canceled,
			SUM(characters) AS characters,
			AVG(first_fragment_ms) AS avg_first_fragment_ms
		FROM stream_logs
		WHERE created_at >= DATE('now', ?)
		GROUP BY date, provider
		ORDER BY date DESC, provider
	`
	// SQLite date offset format is '-7 days'
	err := r.db.SelectContext(ctx, &stats, query, fmt.Sprintf("-%d days", days))
	return stats, err
}
