package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"StockLens/internal/config"
	"StockLens/internal/logger"
	"StockLens/internal/model"
)

// PostgresStore persists instruments and bars to PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore connects the pool described by cfg, pings it and runs migrations.
func NewPostgresStore(ctx context.Context, cfg config.Database) (*PostgresStore, error) {
	l := logger.Component("store").With().Str("driver", "postgres").Logger()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxLogAdapter{log: l},
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, model.StorageFailure("connect", "", fmt.Errorf("ping: %w", err))
	}

	s := &PostgresStore{pool: pool, log: l}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	l.Info().Int32("max_conns", cfg.MaxConns).Msg("PostgreSQL store connected")
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id         UUID PRIMARY KEY,
			symbol     TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS price_bars (
			id            BIGSERIAL PRIMARY KEY,
			instrument_id UUID NOT NULL REFERENCES instruments(id),
			date          DATE NOT NULL,
			open          DOUBLE PRECISION NOT NULL,
			high          DOUBLE PRECISION NOT NULL,
			low           DOUBLE PRECISION NOT NULL,
			close         DOUBLE PRECISION NOT NULL,
			volume        BIGINT NOT NULL,
			UNIQUE (instrument_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			user_id       UUID NOT NULL REFERENCES users(id),
			instrument_id UUID NOT NULL REFERENCES instruments(id),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, instrument_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return model.StorageFailure("migrate", "", fmt.Errorf("exec %q: %w", stmt[:40], err))
		}
	}
	return nil
}

// GetOrCreateInstrument implements Store.
func (s *PostgresStore) GetOrCreateInstrument(ctx context.Context, symbol string) (*model.Instrument, error) {
	const op = "get or create instrument"
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return nil, err
	}

	var inst *model.Instrument
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inst, err = pgUpsertInstrument(ctx, tx, sym)
		return err
	})
	if err != nil {
		return nil, model.StorageFailure(op, sym, err)
	}
	return inst, nil
}

func pgUpsertInstrument(ctx context.Context, tx pgx.Tx, symbol string) (*model.Instrument, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO instruments (id, symbol) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING`,
		uuid.NewString(), symbol,
	); err != nil {
		return nil, fmt.Errorf("insert instrument: %w", err)
	}

	var id string
	inst := &model.Instrument{Symbol: symbol}
	if err := tx.QueryRow(ctx,
		`SELECT id::text, created_at FROM instruments WHERE symbol = $1`, symbol,
	).Scan(&id, &inst.CreatedAt); err != nil {
		return nil, fmt.Errorf("select instrument: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse instrument id: %w", err)
	}
	inst.ID = uid
	inst.CreatedAt = inst.CreatedAt.UTC()
	return inst, nil
}

// ReadBars implements Store.
func (s *PostgresStore) ReadBars(ctx context.Context, inst *model.Instrument, since time.Time) ([]model.PriceBar, error) {
	if inst == nil {
		return nil, model.InvalidRequest("read bars", "", "instrument is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = $1 AND date >= $2
		ORDER BY date ASC`,
		inst.ID.String(), model.TradingDay(since),
	)
	if err != nil {
		return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("query price_bars: %w", err))
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		bar := model.PriceBar{InstrumentID: inst.ID}
		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("scan row: %w", err))
		}
		bar.Date = model.TradingDay(bar.Date)
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageFailure("read bars", inst.Symbol, fmt.Errorf("iterate rows: %w", err))
	}
	return bars, nil
}

// WriteBars implements Store. Each row runs under its own savepoint so a
// failed insert leaves the rest of the batch intact.
func (s *PostgresStore) WriteBars(ctx context.Context, symbol string, rows []model.RawBar) (WriteResult, error) {
	const op = "write bars"
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return WriteResult{}, err
	}

	var res WriteResult
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inst, err := pgUpsertInstrument(ctx, tx, sym)
		if err != nil {
			return err
		}
		for i, row := range rows {
			bar, err := row.Canonical(inst.ID)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Int("row", i).Msg("Skipping malformed bar")
				res.Skipped++
				continue
			}

			var affected int64
			err = pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
				tag, err := sp.Exec(ctx, `
					INSERT INTO price_bars (instrument_id, date, open, high, low, close, volume)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
					ON CONFLICT (instrument_id, date) DO NOTHING`,
					inst.ID.String(), bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
				)
				affected = tag.RowsAffected()
				return err
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.log.Warn().Err(err).Str("symbol", sym).Int("row", i).Msg("Skipping bar after insert failure")
				res.Skipped++
				continue
			}
			if affected == 0 {
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
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, email string) (*model.User, error) {
	const op = "get or create user"
	addr, err := requireEmail(op, email)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		user, err = pgUpsertUser(ctx, tx, addr)
		return err
	})
	if err != nil {
		return nil, model.StorageFailure(op, "", err)
	}
	return user, nil
}

func pgUpsertUser(ctx context.Context, tx pgx.Tx, email string) (*model.User, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2) ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), email,
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var id string
	user := &model.User{Email: email}
	if err := tx.QueryRow(ctx,
		`SELECT id::text, created_at FROM users WHERE email = $1`, email,
	).Scan(&id, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	user.ID = uid
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// AddToWatchlist implements Store.
func (s *PostgresStore) AddToWatchlist(ctx context.Context, email, symbol string) error {
	const op = "add to watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return err
	}
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		user, err := pgUpsertUser(ctx, tx, addr)
		if err != nil {
			return err
		}
		inst, err := pgUpsertInstrument(ctx, tx, sym)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO watchlist (user_id, instrument_id) VALUES ($1, $2)
			 ON CONFLICT (user_id, instrument_id) DO NOTHING`,
			user.ID.String(), inst.ID.String(),
		)
		return err
	})
	if err != nil {
		return model.StorageFailure(op, sym, err)
	}
	return nil
}

// RemoveFromWatchlist implements Store.
func (s *PostgresStore) RemoveFromWatchlist(ctx context.Context, email, symbol string) error {
	const op = "remove from watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return err
	}
	sym, err := requireSymbol(op, symbol)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		DELETE FROM watchlist w
		USING users u, instruments i
		WHERE w.user_id = u.id AND w.instrument_id = i.id
		  AND u.email = $1 AND i.symbol = $2`,
		addr, sym,
	)
	if err != nil {
		return model.StorageFailure(op, sym, err)
	}
	return nil
}

// Watchlist implements Store.
func (s *PostgresStore) Watchlist(ctx context.Context, email string) ([]model.Instrument, error) {
	const op = "watchlist"
	addr, err := requireEmail(op, email)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT i.id::text, i.symbol, i.created_at
		FROM watchlist w
		JOIN users u ON u.id = w.user_id
		JOIN instruments i ON i.id = w.instrument_id
		WHERE u.email = $1
		ORDER BY i.symbol`, addr)
	if err != nil {
		return nil, model.StorageFailure(op, "", fmt.Errorf("query watchlist: %w", err))
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var id string
		var inst model.Instrument
		if err := rows.Scan(&id, &inst.Symbol, &inst.CreatedAt); err != nil {
			return nil, model.StorageFailure(op, "", fmt.Errorf("scan row: %w", err))
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, model.StorageFailure(op, inst.Symbol, fmt.Errorf("parse instrument id: %w", err))
		}
		inst.ID = uid
		inst.CreatedAt = inst.CreatedAt.UTC()
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageFailure(op, "", fmt.Errorf("iterate rows: %w", err))
	}
	return out, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.log.Info().Msg("Closing PostgreSQL connection pool")
	s.pool.Close()
	return nil
}

// pgxLogAdapter routes pgx trace output into zerolog.
type pgxLogAdapter struct {
	log zerolog.Logger
}

func (a pgxLogAdapter) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		ev = a.log.Error()
	case tracelog.LogLevelWarn:
		ev = a.log.Warn()
	case tracelog.LogLevelInfo:
		ev = a.log.Info()
	default:
		ev = a.log.Debug()
	}
	ev.Fields(data).Msg(msg)
}
