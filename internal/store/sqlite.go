package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"StockLens/internal/logger"
	"StockLens/internal/model"
)

// SQLiteStore persists instruments and bars to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	// immediate transactions take the write lock up front, so writers from other
	// handles queue on busy_timeout instead of failing a lock upgrade
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger.Component("store").With().Str("driver", "sqlite").Logger()}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info().Str("path", dbPath).Msg("SQLite store opened")
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_bars (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT NOT NULL REFERENCES instruments(id),
			date          INTEGER NOT NULL,
			open          REAL NOT NULL,
			high          REAL NOT NULL,
			low           REAL NOT NULL,
			close         REAL NOT NULL,
			volume        INTEGER NOT NULL,
			UNIQUE (instrument_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_bars_date ON price_bars(instrument_id, date)`,

		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			user_id       TEXT NOT NULL REFERENCES users(id),
			instrument_id TEXT NOT NULL REFERENCES instruments(id),
			created_at    INTEGER NOT NULL,
			PRIMARY KEY (user_id, instrument_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return model.StorageFailure("migrate", "", fmt.Errorf("exec %q: %w", stmt[:40], err))
		}
	}
	return nil
}

// withTx runs fn in one transaction, committing on success and rolling back otherwise.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetOrCreateInstrument implements Store.
func (s *SQLiteStore) GetOrCreateInstrument(ctx context.Context, symbol string) (*model.Instrument, error) {
	const op = "get or create instrument"
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return nil, err
	}

	var inst *model.Instrument
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		inst, err = sqliteUpsertInstrument(ctx, tx, sym)
		return err
	})
	if err != nil {
		return nil, model.StorageFailure(op, sym, err)
	}
	return inst, nil
}

func sqliteUpsertInstrument(ctx context.Context, tx *sql.Tx, symbol string) (*model.Instrument, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instruments (id, symbol, created_at) VALUES (?, ?, ?) ON CONFLICT(symbol) DO NOTHING`,
		uuid.NewString(), symbol, time.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert instrument: %w", err)
	}

	var id string
	var created int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM instruments WHERE symbol = ?`, symbol,
	).Scan(&id, &created); err != nil {
		return nil, fmt.Errorf("select instrument: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse instrument id: %w", err)
	}
	return &model.Instrument{ID: uid, Symbol: symbol, CreatedAt: time.Unix(created, 0).UTC()}, nil
}

// ReadBars implements Store.
func (s *SQLiteStore) ReadBars(ctx context.Context, inst *model.Instrument, since time.Time) ([]model.PriceBar, error) {
	if inst == nil {
		return nil, model.InvalidRequest("read bars", "", "instrument is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = ? AND date >= ?
		ORDER BY date ASC`,
		inst.ID.String(), model.TradingDay(since).Unix(),
	)
	if err != nil {
		return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("query price_bars: %w", err))
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		bar := model.PriceBar{InstrumentID: inst.ID}
		var date int64
		if err := rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("scan row: %w", err))
		}
		bar.Date = time.Unix(date, 0).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("iterate rows: %w", err))
	}
	return bars, nil
}

// WriteBars implements Store.
func (s *SQLiteStore) WriteBars(ctx context.Context, symbol string, rows []model.RawBar) (WriteResult, error) {
	const op = "write bars"
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return WriteResult{}, err
	}

	var res WriteResult
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		inst, err := sqliteUpsertInstrument(ctx, tx, sym)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO price_bars (instrument_id, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instrument_id, date) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			bar, err := row.Canonical(inst.ID)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Int("row", i).Msg("Skipping malformed bar")
				res.Skipped++
				continue
			}
			r, err := stmt.ExecContext(ctx, inst.ID.String(), bar.Date.Unix(),
				bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Int("row", i).Msg("Skipping bar after insert failure")
				res.Skipped++
				continue
			}
			if n, _ := r.RowsAffected(); n == 0 {
				res.Duplicates++
			} else {
				res.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, model.StorageFailure(op, sym, err)
	}
	return res, nil
}

// GetOrCreateUser implements Store.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, email string) (*model.User, error) {
	const op = "get or create user"
	addr, err := requireEmail(op, email)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		user, err = sqliteUpsertUser(ctx, tx, addr)
		return err
	})
	if err != nil {
		return nil, model.StorageFailure(op, "", err)
	}
	return user, nil
}

func sqliteUpsertUser(ctx context.Context, tx *sql.Tx, email string) (*model.User, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?) ON CONFLICT(email) DO NOTHING`,
		uuid.NewString(), email, time.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var id string
	var created int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE email = ?`, email,
	).Scan(&id, &created); err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &model.User{ID: uid, Email: email, CreatedAt: time.Unix(created, 0).UTC()}, nil
}

// AddToWatchlist implements Store.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, email, symbol string) error {
	const op = "add to watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return err
	}
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		user, err := sqliteUpsertUser(ctx, tx, addr)
		if err != nil {
			return err
		}
		inst, err := sqliteUpsertInstrument(ctx, tx, sym)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO watchlist (user_id, instrument_id, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(user_id, instrument_id) DO NOTHING`,
			user.ID.String(), inst.ID.String(), time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("insert watchlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.StorageFailure(op, sym, err)
	}
	return nil
}

// RemoveFromWatchlist implements Store.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, email, symbol string) error {
	const op = "remove from watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return err
	}
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM watchlist
			WHERE user_id = (SELECT id FROM users WHERE email = ?)
			  AND instrument_id = (SELECT id FROM instruments WHERE symbol = ?)`,
			addr, sym,
		)
		return err
	})
	if err != nil {
		return model.StorageFailure(op, sym, err)
	}
	return nil
}

// Watchlist implements Store.
func (s *SQLiteStore) Watchlist(ctx context.Context, email string) ([]model.Instrument, error) {
	const op = "watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.symbol, i.created_at
		FROM watchlist w
		JOIN users u ON u.id = w.user_id
		JOIN instruments i ON i.id = w.instrument_id
		WHERE u.email = ?
		ORDER BY i.symbol`, addr)
	if err != nil {
		return nil, model.StorageFailure(op, "", fmt.Errorf("query watchlist: %w", err))
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var id, symbol string
		var created int64
		if err := rows.Scan(&id, &symbol, &created); err != nil {
			return nil, model.StorageFailure(op, "", fmt.Errorf("scan row: %w", err))
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, model.StorageFailure(op, symbol, fmt.Errorf("parse instrument id: %w", err))
		}
		out = append(out, model.Instrument{ID: uid, Symbol: symbol, CreatedAt: time.Unix(created, 0).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageFailure(op, "", fmt.Errorf("iterate rows: %w", err))
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("Closing SQLite store")
	return s.db.Close()
}
