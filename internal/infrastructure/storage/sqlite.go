package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

// SQLiteStore is the append-only trade journal. Prices are stored as TEXT
// so decimal values round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			close_price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			fees TEXT NOT NULL DEFAULT '0',
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_zone ON trades(zone_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) AppendTrade(ctx context.Context, rec *domain.TradeRecord) error {
	query := `INSERT INTO trades (id, position_id, symbol, side, zone_id, entry_price, close_price, quantity, realized_pnl, fees, outcome, reason, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PositionID, rec.Symbol, string(rec.Side), rec.ZoneID,
		rec.EntryPrice.String(), rec.ClosePrice.String(), rec.Quantity.String(),
		rec.RealizedPnL.String(), rec.Fees.String(), string(rec.Outcome),
		rec.Reason, rec.OpenedAt, rec.ClosedAt)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, position_id, symbol, side, zone_id, entry_price, close_price, quantity, realized_pnl, fees, outcome, reason, opened_at, closed_at
			  FROM trades ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (*domain.TradeRecord, error) {
	var (
		rec                             domain.TradeRecord
		side, outcome                   string
		entry, exit, qty, pnl, fees     string
		openedAt, closedAt              time.Time
	)
	if err := rows.Scan(&rec.ID, &rec.PositionID, &rec.Symbol, &side, &rec.ZoneID,
		&entry, &exit, &qty, &pnl, &fees, &outcome, &rec.Reason, &openedAt, &closedAt); err != nil {
		return nil, err
	}
	rec.Side = domain.Side(side)
	rec.Outcome = domain.Outcome(outcome)
	rec.OpenedAt = openedAt
	rec.ClosedAt = closedAt

	var err error
	if rec.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, err
	}
	if rec.ClosePrice, err = decimal.NewFromString(exit); err != nil {
		return nil, err
	}
	if rec.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	if rec.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, err
	}
	if rec.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
