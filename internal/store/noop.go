package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"StockLens/internal/model"
)

// instrumentNamespace seeds name-based instrument IDs for the noop store.
var instrumentNamespace = uuid.MustParse("6f1c2a4e-3b7d-4e0a-9c55-1d2b8e7f4a10")

// NoopStore is used when no database is configured. Every read is a miss
// and writes are validated then discarded.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) GetOrCreateInstrument(_ context.Context, symbol string) (*model.Instrument, error) {
	sym, err := requireSymbol("get or create instrument", symbol)
	if err != nil {
		return nil, err
	}
	return &model.Instrument{ID: uuid.NewSHA1(instrumentNamespace, []byte(sym)), Symbol: sym}, nil
}

func (n *NoopStore) ReadBars(_ context.Context, _ *model.Instrument, _ time.Time) ([]model.PriceBar, error) {
	return nil, nil
}

func (n *NoopStore) WriteBars(_ context.Context, symbol string, rows []model.RawBar) (WriteResult, error) {
	sym, err := requireSymbol("write bars", symbol)
	if err != nil {
		return WriteResult{}, err
	}
	id := uuid.NewSHA1(instrumentNamespace, []byte(sym))
	var res WriteResult
	for _, row := range rows {
		if _, err := row.Canonical(id); err != nil {
			res.Skipped++
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (n *NoopStore) GetOrCreateUser(_ context.Context, email string) (*model.User, error) {
	addr, err := requireEmail("get or create user", email)
	if err != nil {
		return nil, err
	}
	return &model.User{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+addr)), Email: addr}, nil
}

func (n *NoopStore) AddToWatchlist(_ context.Context, _, _ string) error      { return nil }
func (n *NoopStore) RemoveFromWatchlist(_ context.Context, _, _ string) error { return nil }

func (n *NoopStore) Watchlist(_ context.Context, _ string) ([]model.Instrument, error) {
	return nil, nil
}

func (n *NoopStore) Migrate(_ context.Context) error { return nil }
func (n *NoopStore) Close() error                    { return nil }
