package orderbook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// VehicleCategory enumerates the instrument classes a TradingVehicle may be.
type VehicleCategory string

const (
	Stocks VehicleCategory = "stocks"
	Crypto VehicleCategory = "crypto"
	Forex VehicleCategory = "forex"
	Futures VehicleCategory = "futures"
)

// TradingVehicle is a broker-tradable symbol.
type TradingVehicle struct {
	ID string
	Symbol string
	Category VehicleCategory
	Broker string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// VehicleStore is the trading_vehicles repository.
type VehicleStore struct {
	db *store.DB
}

// NewVehicleStore builds a VehicleStore over db.
func NewVehicleStore(db *store.DB) *VehicleStore { return &VehicleStore{db: db} }

// Upsert creates a vehicle if the symbol is unseen, or returns the existing one.
func (s *VehicleStore) Upsert(ctx context.Context, symbol string, category VehicleCategory, broker string) (TradingVehicle, error) {
	existing, err := s.GetBySymbol(ctx, symbol)
	if err == nil {
		return existing, nil
	}
	if err != store.ErrNotFound {
		return TradingVehicle{}, err
	}
	v := TradingVehicle{ID: uuid.NewString(), Symbol: symbol, Category: category, Broker: broker, CreatedAt: time.Now().UTC()}
	_, err = s.db.SQL.ExecContext(ctx, `
		INSERT INTO trading_vehicles (id, symbol, category, broker, created_at) VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.Symbol, v.Category, v.Broker, v.CreatedAt)
	if err != nil {
		return TradingVehicle{}, fmt.Errorf("insert trading vehicle: %w", err)
	}
	return v, nil
}

// GetBySymbol fetches a non-deleted vehicle by symbol.
func (s *VehicleStore) GetBySymbol(ctx context.Context, symbol string) (TradingVehicle, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT id, symbol, category, broker, created_at, deleted_at
		FROM trading_vehicles WHERE symbol = ? AND deleted_at IS NULL
	`, symbol)
	var v TradingVehicle
	var deletedAt sql.NullTime
	err := row.Scan(&v.ID, &v.Symbol, &v.Category, &v.Broker, &v.CreatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return TradingVehicle{}, store.ErrNotFound
	}
	if err != nil {
		return TradingVehicle{}, fmt.Errorf("scan trading vehicle: %w", err)
	}
	if deletedAt.Valid {
		v.DeletedAt = &deletedAt.Time
	}
	return v, nil
}

// Get fetches a vehicle by id.
func (s *VehicleStore) Get(ctx context.Context, id string) (TradingVehicle, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT id, symbol, category, broker, created_at, deleted_at
		FROM trading_vehicles WHERE id = ? AND deleted_at IS NULL
	`, id)
	var v TradingVehicle
	var deletedAt sql.NullTime
	err := row.Scan(&v.ID, &v.Symbol, &v.Category, &v.Broker, &v.CreatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return TradingVehicle{}, store.ErrNotFound
	}
	if err != nil {
		return TradingVehicle{}, fmt.Errorf("scan trading vehicle: %w", err)
	}
	if deletedAt.Valid {
		v.DeletedAt = &deletedAt.Time
	}
	return v, nil
}
