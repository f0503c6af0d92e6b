// Package ledger persists the authoritative snapshot metadata records in
// PostgreSQL, one row per (date, region).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const initSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id          BIGSERIAL PRIMARY KEY,
    date_utc    DATE NOT NULL,
    region      TEXT NOT NULL,
    csv_url     TEXT NOT NULL,
    csv_sha256  TEXT NOT NULL,
    json_url    TEXT NOT NULL,
    json_sha256 TEXT NOT NULL,
    ipfs_cid    TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT snapshots_date_region_key UNIQUE (date_utc, region)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_region_date ON snapshots(region, date_utc DESC);
`

const snapshotColumns = "id, date_utc, region, csv_url, csv_sha256, json_url, json_sha256, ipfs_cid, created_at"

// Snapshot is one authoritative metadata record. IPFSCID is empty when
// anchoring was skipped or failed.
type Snapshot struct {
	ID         int64
	DateUTC    string
	Region     string
	CSVURL     string
	CSVSHA256  string
	JSONURL    string
	JSONSHA256 string
	IPFSCID    string
	CreatedAt  time.Time
}

// Record carries the mutable fields of an upsert.
type Record struct {
	DateUTC    string
	Region     string
	CSVURL     string
	CSVSHA256  string
	JSONURL    string
	JSONSHA256 string
	IPFSCID    string
}

// Ledger wraps the snapshots table.
type Ledger struct {
	db *sql.DB
}

// New connects to PostgreSQL and verifies the connection.
func New(connStr string) (*Ledger, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}

	return &Ledger{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate provisions the snapshots schema.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, initSchema); err != nil {
		return fmt.Errorf("error initializing schema: %w", err)
	}
	return nil
}

// Upsert inserts or overwrites the record for its (date, region) in a single
// statement. On conflict every mutable field is replaced and created_at is
// refreshed, so the row always reflects the most recent successful run.
func (l *Ledger) Upsert(ctx context.Context, rec Record) (*Snapshot, error) {
	query := `
		INSERT INTO snapshots (date_utc, region, csv_url, csv_sha256, json_url, json_sha256, ipfs_cid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date_utc, region) DO UPDATE SET
			csv_url     = EXCLUDED.csv_url,
			csv_sha256  = EXCLUDED.csv_sha256,
			json_url    = EXCLUDED.json_url,
			json_sha256 = EXCLUDED.json_sha256,
			ipfs_cid    = EXCLUDED.ipfs_cid,
			created_at  = NOW()
		RETURNING ` + snapshotColumns

	row := l.db.QueryRowContext(ctx, query,
		rec.DateUTC, rec.Region, rec.CSVURL, rec.CSVSHA256, rec.JSONURL, rec.JSONSHA256,
		nullString(rec.IPFSCID))

	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("error upserting snapshot %s/%s: %w", rec.DateUTC, rec.Region, err)
	}
	return snap, nil
}

// Get returns the snapshot for (date, region), or (nil, nil) when absent.
func (l *Ledger) Get(ctx context.Context, dateUTC, region string) (*Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots WHERE date_utc = $1 AND region = $2"

	snap, err := scanSnapshot(l.db.QueryRowContext(ctx, query, dateUTC, region))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading snapshot %s/%s: %w", dateUTC, region, err)
	}
	return snap, nil
}

// Latest returns the most recent snapshot for a region, or (nil, nil) when
// the region has none.
func (l *Ledger) Latest(ctx context.Context, region string) (*Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots WHERE region = $1 ORDER BY date_utc DESC LIMIT 1"

	snap, err := scanSnapshot(l.db.QueryRowContext(ctx, query, region))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading latest snapshot for %s: %w", region, err)
	}
	return snap, nil
}

// Count returns the total number of snapshot rows.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting snapshots: %w", err)
	}
	return n, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var (
		snap    Snapshot
		dateUTC time.Time
		cid     sql.NullString
	)
	err := row.Scan(&snap.ID, &dateUTC, &snap.Region,
		&snap.CSVURL, &snap.CSVSHA256, &snap.JSONURL, &snap.JSONSHA256,
		&cid, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}
	snap.DateUTC = dateUTC.Format("2006-01-02")
	snap.IPFSCID = cid.String
	return &snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
