package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tendbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Regimens(ctx context.Context) ([]Regimen, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM regimens ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Regimen
	for rows.Next() {
		var r Regimen
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := s.regimenItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *sqliteStore) RegimenByID(ctx context.Context, id int64) (Regimen, error) {
	var r Regimen
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM regimens WHERE id = ?`, id).
		Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Regimen{}, fmt.Errorf("regimen %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Regimen{}, err
	}
	r.Items, err = s.regimenItems(ctx, id)
	if err != nil {
		return Regimen{}, err
	}
	return r, nil
}

func (s *sqliteStore) regimenItems(ctx context.Context, regimenID int64) ([]RegimenItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time_offset_ms, sequence_id FROM regimen_items WHERE regimen_id = ? ORDER BY position`,
		regimenID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RegimenItem
	for rows.Next() {
		var offsetMS int64
		var it RegimenItem
		if err := rows.Scan(&offsetMS, &it.SequenceID); err != nil {
			return nil, err
		}
		it.TimeOffset = time.Duration(offsetMS) * time.Millisecond
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *sqliteStore) SequenceByID(ctx context.Context, id int64) (Sequence, error) {
	var sq Sequence
	err := s.db.QueryRowContext(ctx, `SELECT id, name, body FROM sequences WHERE id = ?`, id).
		Scan(&sq.ID, &sq.Name, &sq.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Sequence{}, fmt.Errorf("sequence %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Sequence{}, err
	}
	return sq, nil
}

func (s *sqliteStore) TimezoneSetting(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'timezone'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (s *sqliteStore) HasExecuted(ctx context.Context, k ExecutionKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM executions WHERE regimen_id = ? AND sequence_id = ? AND token = ? AND epoch_ms = ?`,
		k.RegimenID, k.SequenceID, k.Token, k.Epoch.UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) MarkExecuted(ctx context.Context, k ExecutionKey, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(regimen_id, sequence_id, token, epoch_ms, executed_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(regimen_id, sequence_id, token, epoch_ms) DO NOTHING`,
		k.RegimenID, k.SequenceID, k.Token, k.Epoch.UnixMilli(), at.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) PruneExecuted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE executed_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
