package agent

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Directory is a SQLite-backed pubkey -> display-name table and completed
// trade history, additive to the required state.json/reputation.json
// on-disk layout. Adapted from the teacher's internal/storage/peers.go and
// internal/storage/trades.go (upsert schema, single-writer WAL pragmas).
type Directory struct {
	db *sql.DB
}

// OpenDirectory opens (creating if absent) the directory database at dir.
func OpenDirectory(dir string) (*Directory, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create directory dir: %w", err)
	}
	dbPath := filepath.Join(dir, "directory.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping directory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &Directory{db: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init directory schema: %w", err)
	}
	return d, nil
}

func (d *Directory) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pubkey_names (
		pubkey TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		learned_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		offer_id TEXT PRIMARY KEY,
		counterparty TEXT NOT NULL,
		role TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		amount_sats INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_counterparty ON trade_history(counterparty);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (d *Directory) Close() error {
	return d.db.Close()
}

// LearnName records (or overwrites) the display name observed for pubkey in
// a kind-0 metadata event.
func (d *Directory) LearnName(pubkey, name string) error {
	_, err := d.db.Exec(`
		INSERT INTO pubkey_names (pubkey, name, learned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET name = excluded.name, learned_at = excluded.learned_at
	`, pubkey, name, time.Now().Unix())
	return err
}

// NameFor returns the learned display name for pubkey, or the truncated
// pubkey fallback if none has been learned.
func (d *Directory) NameFor(pubkey string) string {
	var name string
	err := d.db.QueryRow(`SELECT name FROM pubkey_names WHERE pubkey = ?`, pubkey).Scan(&name)
	if err != nil {
		if len(pubkey) > 8 {
			return pubkey[:8] + "..."
		}
		return pubkey
	}
	return name
}

// RecordTrade appends a completed or failed trade to the history table.
func (d *Directory) RecordTrade(offerID, counterparty, role, listingID string, amountSats int64, outcome string) error {
	_, err := d.db.Exec(`
		INSERT INTO trade_history (offer_id, counterparty, role, listing_id, amount_sats, outcome, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET outcome = excluded.outcome, completed_at = excluded.completed_at
	`, offerID, counterparty, role, listingID, amountSats, outcome, time.Now().Unix())
	return err
}

// TradeHistoryEntry is one row of completed-trade history.
type TradeHistoryEntry struct {
	OfferID      string
	Counterparty string
	Role         string
	ListingID    string
	AmountSats   int64
	Outcome      string
	CompletedAt  time.Time
}

// HistoryWith returns every recorded trade against counterparty, most
// recent first.
func (d *Directory) HistoryWith(counterparty string) ([]TradeHistoryEntry, error) {
	rows, err := d.db.Query(`
		SELECT offer_id, counterparty, role, listing_id, amount_sats, outcome, completed_at
		FROM trade_history WHERE counterparty = ? ORDER BY completed_at DESC
	`, counterparty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeHistoryEntry
	for rows.Next() {
		var e TradeHistoryEntry
		var completedAt int64
		if err := rows.Scan(&e.OfferID, &e.Counterparty, &e.Role, &e.ListingID, &e.AmountSats, &e.Outcome, &completedAt); err != nil {
			return nil, err
		}
		e.CompletedAt = time.Unix(completedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
