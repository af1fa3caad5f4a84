package store

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"StockLens/internal/config"
	"StockLens/internal/model"
)

// WriteResult counts what happened to each row handed to WriteBars.
type WriteResult struct {
	Inserted   int
	Duplicates int // (instrument, date) already stored; ignored
	Skipped    int // failed conversion or insert
}

// Add accumulates another batch result.
func (w *WriteResult) Add(o WriteResult) {
	w.Inserted += o.Inserted
	w.Duplicates += o.Duplicates
	w.Skipped += o.Skipped
}

// Store persists instruments, their daily bars and user watchlists.
type Store interface {
	// GetOrCreateInstrument returns the instrument for symbol, creating it on first reference.
	GetOrCreateInstrument(ctx context.Context, symbol string) (*model.Instrument, error)
	// ReadBars returns the instrument's bars dated on or after since, oldest first.
	// No bars and no instrument both yield an empty slice.
	ReadBars(ctx context.Context, inst *model.Instrument, since time.Time) ([]model.PriceBar, error)
	// WriteBars appends one bar per row for symbol. Rows that fail are logged and skipped.
	WriteBars(ctx context.Context, symbol string, rows []model.RawBar) (WriteResult, error)

	GetOrCreateUser(ctx context.Context, email string) (*model.User, error)
	AddToWatchlist(ctx context.Context, email, symbol string) error
	RemoveFromWatchlist(ctx context.Context, email, symbol string) error
	Watchlist(ctx context.Context, email string) ([]model.Instrument, error)

	// Migrate creates missing tables and indexes.
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Database) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg)
	case config.DriverNone:
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email %q", email)
	}
	return email, nil
}

func requireSymbol(op, symbol string) (string, error) {
	s := NormalizeSymbol(symbol)
	if s == "" {
		return "", model.InvalidRequest(op, symbol, "symbol is empty")
	}
	return s, nil
}

func requireEmail(op, email string) (string, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return "", model.InvalidRequest(op, "", err.Error())
	}
	return e, nil
}
