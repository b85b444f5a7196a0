package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"llmvisor/pkg/types"
)

// SQLite stores the ledger and alerts in a single database file.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS costs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  model TEXT NOT NULL,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  cost_usd REAL NOT NULL DEFAULT 0,
  ts_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS costs_ts ON costs(ts_unix_ms);

CREATE TABLE IF NOT EXISTS alerts (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  alert_id TEXT NOT NULL,
  service TEXT NOT NULL,
  kind TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL DEFAULT 0,
  ts_unix_ms INTEGER NOT NULL
);
`)
	return err
}

func (s *SQLite) AppendCost(ctx context.Context, e types.CostEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO costs(provider, model, input_tokens, output_tokens, cost_usd, ts_unix_ms)
VALUES(?, ?, ?, ?, ?, ?);
`, e.Provider, e.Model, e.InputTokens, e.OutputTokens, e.CostUSD, e.Timestamp.UnixMilli())
	return err
}

func (s *SQLite) Costs(ctx context.Context, since time.Time) ([]types.CostEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT provider, model, input_tokens, output_tokens, cost_usd, ts_unix_ms
FROM costs WHERE ts_unix_ms >= ? ORDER BY id ASC;
`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.CostEntry
	for rows.Next() {
		var e types.CostEntry
		var ms int64
		if err := rows.Scan(&e.Provider, &e.Model, &e.InputTokens, &e.OutputTokens, &e.CostUSD, &ms); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendAlert(ctx context.Context, a types.Alert) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts(alert_id, service, kind, message, attempts, ts_unix_ms)
VALUES(?, ?, ?, ?, ?, ?);
`, a.ID, a.Service, a.Kind, a.Message, a.Attempts, a.Timestamp.UnixMilli())
	return err
}

func (s *SQLite) Alerts(ctx context.Context, limit int) ([]types.Alert, error) {
	q := `
SELECT alert_id, service, kind, message, attempts, ts_unix_ms
FROM alerts ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var a types.Alert
		var ms int64
		if err := rows.Scan(&a.ID, &a.Service, &a.Kind, &a.Message, &a.Attempts, &ms); err != nil {
			return nil, err
		}
		a.Timestamp = time.UnixMilli(ms)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
