package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/edusync/internal/database"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/ulid"
)

// Entry is one journaled dispatch
type Entry struct {
	ID           string
	Type         string
	Listeners    int
	DispatchedAt time.Time
}

// Journal stores dispatched signals in the completion_signals table. It is
// an audit trail only; nothing is ever re-delivered from it.
type Journal struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewJournal creates a journal over db
func NewJournal(db *sql.DB, logger *loggy.Logger) *Journal {
	if logger == nil {
		logger = loggy.GetGlobalLogger()
	}
	return &Journal{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Record implements Recorder
func (j *Journal) Record(ctx context.Context, sig Signal, listeners int) error {
	query, args, err := j.builder.Insert("completion_signals").
		Columns("id", "type", "listeners", "dispatched_at").
		Values(ulid.SignalID(), sig.Type, listeners, sig.At.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building record signal query: %w", err)
	}

	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing record signal query: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	builder := j.builder.Select("id", "type", "listeners", "dispatched_at").
		From("completion_signals").
		OrderBy("dispatched_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building recent signals query: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing recent signals query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.Listeners, &e.DispatchedAt); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signal rows: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than before and returns how many were removed
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := j.builder.Delete("completion_signals").
		Where(sq.Lt{"dispatched_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building prune signals query: %w", err)
	}

	var removed int64
	err = database.WithTransaction(ctx, j.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("executing prune signals query: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	j.logger.Debug("Pruned signal journal", "removed", removed, "before", before)
	return removed, nil
}
