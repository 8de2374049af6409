// Package sqlite persists candle history and a journal of emitted signals.
// The candle table backs the distributor's one-time bulk fetch and the
// synchronous strategy-run CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-systemv1/internal/model"
)

// Config configures the store.
type Config struct {
	Path string // e.g. "data/market.db"
}

// Store is a single-writer SQLite store in WAL mode.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and applies the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened database at %s", cfg.Path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			final     INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          TEXT    PRIMARY KEY,
			strategy_id TEXT    NOT NULL,
			rule_id     TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			type        TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			price       REAL    NOT NULL,
			confidence  REAL    NOT NULL,
			indicators  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, ts);
	`)
	return err
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// InsertCandles upserts a batch of candles in one transaction.
func (s *Store) InsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume, final)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume, final=excluded.final`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		final := 0
		if c.Final {
			final = 1
		}
		if _, err := stmt.Exec(c.Symbol, c.Timeframe, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, final); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}
	return tx.Commit()
}

// Candles returns up to limit trailing candles for a key, oldest first.
// Signature-compatible with source.HistoryFunc via a method value.
func (s *Store) Candles(ctx context.Context, key model.SubscriptionKey, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = model.DefaultBufferCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, final
		FROM candles WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC LIMIT ?`, key.Symbol, key.Timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var ts int64
		var final int
		c := model.Candle{Symbol: key.Symbol, Timeframe: key.Timeframe}
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &final); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.Unix(ts, 0).UTC()
		c.Final = final == 1
		out = append(out, c)
	}
	// Reverse DESC results to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// JournalSignal appends an emitted signal to the journal.
func (s *Store) JournalSignal(ctx context.Context, sig model.Signal) error {
	indicators, _ := json.Marshal(sig.Indicators)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (id, strategy_id, rule_id, side, type, ts, price, confidence, indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.StrategyID, sig.RuleID, string(sig.Side), string(sig.Type),
		sig.TS.Unix(), sig.Price, sig.Confidence, string(indicators))
	if err != nil {
		return fmt.Errorf("sqlite journal signal: %w", err)
	}
	return nil
}

// Signals returns up to limit recent signals for a strategy, newest first.
func (s *Store) Signals(ctx context.Context, strategyID string, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, side, type, ts, price, confidence, indicators
		FROM signals WHERE strategy_id = ? ORDER BY ts DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var ts int64
		var side, typ, indicators string
		sig := model.Signal{StrategyID: strategyID}
		if err := rows.Scan(&sig.ID, &sig.RuleID, &side, &typ, &ts, &sig.Price, &sig.Confidence, &indicators); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sig.Side = model.Side(side)
		sig.Type = model.SignalType(typ)
		sig.TS = time.Unix(ts, 0).UTC()
		if indicators != "" {
			json.Unmarshal([]byte(indicators), &sig.Indicators)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
