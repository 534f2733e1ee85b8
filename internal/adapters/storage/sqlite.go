package storage

// sqlite.go — liquidation journal.
//
//   - `cycles`: one row per evaluate-and-execute cycle.
//   - `attempts`: one row per liquidation transaction attempt.
//   - Pruned on open: rows older than 30 days are dropped.
//
// The journal is write-mostly. Nothing is read back to rebuild state; the
// read helpers exist for the --history report.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id          TEXT PRIMARY KEY,
    started_at  INTEGER  NOT NULL, -- unix ms
    duration_ms INTEGER  NOT NULL DEFAULT 0,
    watchlist   INTEGER  NOT NULL DEFAULT 0,
    candidates  INTEGER  NOT NULL DEFAULT 0,
    succeeded   INTEGER  NOT NULL DEFAULT 0,
    failed      INTEGER  NOT NULL DEFAULT 0,
    err         TEXT     NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attempts (
    id               TEXT PRIMARY KEY,
    cycle_id         TEXT     NOT NULL,
    attempted_at     INTEGER  NOT NULL, -- unix ms
    number           INTEGER  NOT NULL,
    borrower         TEXT     NOT NULL,
    debt_asset       TEXT     NOT NULL,
    collateral_asset TEXT     NOT NULL,
    debt_to_cover    TEXT     NOT NULL DEFAULT '0',
    min_amount_out   TEXT     NOT NULL DEFAULT '0',
    success          INTEGER  NOT NULL DEFAULT 0,
    tx_hash          TEXT     NOT NULL DEFAULT '',
    err              TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_at     ON cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_cyc  ON attempts(cycle_id);
CREATE INDEX IF NOT EXISTS idx_attempts_at   ON attempts(attempted_at DESC);
`

const retention = 30 * 24 * time.Hour

// SQLiteJournal implements ports.Journal using SQLite (pure Go, no CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal at path, applies the
// schema and drops expired rows.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveCycle inserts the summary, replacing a row with the same id.
func (j *SQLiteJournal) SaveCycle(ctx context.Context, s domain.CycleSummary) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles
			(id, started_at, duration_ms, watchlist, candidates, succeeded, failed, err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.UnixMilli(), s.Duration.Milliseconds(),
		s.Watchlist, s.Candidates, s.Succeeded, s.Failed, s.Err,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: %w", err)
	}
	return nil
}

// SaveAttempt inserts one attempt row.
func (j *SQLiteJournal) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	var txHash string
	if a.TxHash != (common.Hash{}) {
		txHash = a.TxHash.Hex()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts
			(id, cycle_id, attempted_at, number, borrower, debt_asset, collateral_asset,
			 debt_to_cover, min_amount_out, success, tx_hash, err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CycleID, a.At.UnixMilli(), a.Number,
		a.Candidate.Borrower.Hex(), a.Candidate.DebtAsset.Hex(), a.Candidate.CollateralAsset.Hex(),
		amountText(a.Candidate.DebtToCover), amountText(a.Candidate.MinAmountOut),
		a.Success, txHash, a.Err,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycles first.
func (j *SQLiteJournal) RecentCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, watchlist, candidates, succeeded, failed, err
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleSummary
	for rows.Next() {
		var (
			s         domain.CycleSummary
			startedMs int64
			ms        int64
		)
		if err := rows.Scan(&s.ID, &startedMs, &ms, &s.Watchlist, &s.Candidates,
			&s.Succeeded, &s.Failed, &s.Err); err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan: %w", err)
		}
		s.StartedAt = time.UnixMilli(startedMs).UTC()
		s.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttemptStats counts attempts by outcome since the given time.
func (j *SQLiteJournal) AttemptStats(ctx context.Context, since time.Time) (succeeded, failed int, err error) {
	err = j.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM attempts
		WHERE attempted_at >= ?`, since.UnixMilli()).Scan(&succeeded, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("storage.AttemptStats: %w", err)
	}
	return succeeded, failed, nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	j.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
	j.db.ExecContext(ctx, `DELETE FROM attempts WHERE attempted_at < ?`, cutoff)
}

func amountText(a *domain.Amount) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}
