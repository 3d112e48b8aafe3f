package trade

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Store is the trades + trade_balances repository.
type Store struct {
	db *store.DB
}

// NewStore builds a trade Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

const selectCols = `
	SELECT id, account_id, trading_vehicle_id, category, currency, status,
	 entry_order_id, target_order_id, safety_stop_order_id,
	 thesis, sector, asset_class, context, created_at, updated_at, deleted_at
	FROM trades`

// CreateTx inserts a new trade row within an existing transaction.
func CreateTx(ctx context.Context, tx *sql.Tx, t Trade) (Trade, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (
			id, account_id, trading_vehicle_id, category, currency, status,
			entry_order_id, target_order_id, safety_stop_order_id,
			thesis, sector, asset_class, context, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AccountID, t.TradingVehicleID, t.Category, t.Currency, t.Status,
		t.EntryOrderID, t.TargetOrderID, t.SafetyStopOrderID,
		t.Thesis, t.Sector, t.AssetClass, t.Context, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Trade{}, fmt.Errorf("insert trade: %w", err)
	}
	return t, nil
}

// Get fetches a non-deleted trade by id.
func (s *Store) Get(ctx context.Context, id string) (Trade, error) {
	return scanOne(s.db.SQL.QueryRowContext(ctx, selectCols+` WHERE id = ? AND deleted_at IS NULL`, id))
}

// GetTx fetches a trade by id within an existing transaction.
func GetTx(ctx context.Context, tx *sql.Tx, id string) (Trade, error) {
	return scanOne(tx.QueryRowContext(ctx, selectCols+` WHERE id = ? AND deleted_at IS NULL`, id))
}

func scanOne(row *sql.Row) (Trade, error) {
	var t Trade
	var thesis, sector, assetClass, ctxt sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&t.ID, &t.AccountID, &t.TradingVehicleID, &t.Category, &t.Currency, &t.Status,
		&t.EntryOrderID, &t.TargetOrderID, &t.SafetyStopOrderID,
		&thesis, &sector, &assetClass, &ctxt, &t.CreatedAt, &t.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return Trade{}, store.ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("scan trade: %w", err)
	}
	if thesis.Valid {
		t.Thesis = &thesis.String
	}
	if sector.Valid {
		t.Sector = &sector.String
	}
	if assetClass.Valid {
		t.AssetClass = &assetClass.String
	}
	if ctxt.Valid {
		t.Context = &ctxt.String
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return t, nil
}

// UpdateStatusTx updates status and updated_at within tx.
func UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status) error {
	_, err := tx.ExecContext(ctx, `UPDATE trades SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	return err
}

// UpdateSafetyStopOrderTx repoints a trade at a replacement stop order row.
// Modifying a working order never rewrites broker_order_id on the original
// row; it creates a new local Order row and the trade starts pointing at
// that row instead.
func UpdateSafetyStopOrderTx(ctx context.Context, tx *sql.Tx, tradeID, newOrderID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE trades SET safety_stop_order_id = ?, updated_at = ? WHERE id = ?`, newOrderID, time.Now().UTC(), tradeID)
	return err
}

// UpdateTargetOrderTx is UpdateSafetyStopOrderTx's target-leg counterpart.
func UpdateTargetOrderTx(ctx context.Context, tx *sql.Tx, tradeID, newOrderID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE trades SET target_order_id = ?, updated_at = ? WHERE id = ?`, newOrderID, time.Now().UTC(), tradeID)
	return err
}

// ListOpen returns all trades for an account whose status is not terminal.
func (s *Store) ListOpen(ctx context.Context, accountID string) ([]Trade, error) {
	rows, err := s.db.SQL.QueryContext(ctx, selectCols+`
		WHERE account_id = ? AND deleted_at IS NULL
		 AND status NOT IN (?, ?) ORDER BY created_at
	`, accountID, StatusClosedTarget, StatusClosedStopLoss)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var thesis, sector, assetClass, ctxt sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TradingVehicleID, &t.Category, &t.Currency, &t.Status,
			&t.EntryOrderID, &t.TargetOrderID, &t.SafetyStopOrderID,
			&thesis, &sector, &assetClass, &ctxt, &t.CreatedAt, &t.UpdatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if thesis.Valid {
			t.Thesis = &thesis.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutBalanceTx upserts the derived TradeBalance within tx.
func PutBalanceTx(ctx context.Context, tx *sql.Tx, b Balance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_balances (trade_id, currency, funding, capital_in_market, capital_out_market, taxed, total_performance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			currency = excluded.currency,
			funding = excluded.funding,
			capital_in_market = excluded.capital_in_market,
			capital_out_market = excluded.capital_out_market,
			taxed = excluded.taxed,
			total_performance = excluded.total_performance,
			updated_at = excluded.updated_at
	`, b.TradeID, b.Currency, b.Funding.String(), b.CapitalInMarket.String(), b.CapitalOutMarket.String(),
		b.Taxed.String(), b.TotalPerformance.String(), time.Now().UTC())
	return err
}

// GetBalance returns the derived balance for a trade, or a zeroed Balance.
func (s *Store) GetBalance(ctx context.Context, tradeID string) (Balance, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT trade_id, currency, funding, capital_in_market, capital_out_market, taxed, total_performance
		FROM trade_balances WHERE trade_id = ?
	`, tradeID)
	var b Balance
	var funding, inMarket, outMarket, taxed, perf string
	err := row.Scan(&b.TradeID, &b.Currency, &funding, &inMarket, &outMarket, &taxed, &perf)
	if err == sql.ErrNoRows {
		return Balance{TradeID: tradeID, Funding: money.Zero, CapitalInMarket: money.Zero,
			CapitalOutMarket: money.Zero, Taxed: money.Zero, TotalPerformance: money.Zero}, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("scan trade balance: %w", err)
	}
	if b.Funding, err = money.Parse(funding); err != nil {
		return Balance{}, err
	}
	if b.CapitalInMarket, err = money.Parse(inMarket); err != nil {
		return Balance{}, err
	}
	if b.CapitalOutMarket, err = money.Parse(outMarket); err != nil {
		return Balance{}, err
	}
	if b.Taxed, err = money.Parse(taxed); err != nil {
		return Balance{}, err
	}
	if b.TotalPerformance, err = money.Parse(perf); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// RecomputeBalanceTx derives TradeBalance from the trade's transactions
// within tx, mirroring the account balance replay in ledger but scoped to
// trade-internal categories only.
func RecomputeBalanceTx(ctx context.Context, tx *sql.Tx, tradeID string, currency money.Currency) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT amount, category FROM transactions WHERE trade_id = ? ORDER BY created_at, id
	`, tradeID)
	if err != nil {
		return fmt.Errorf("replay trade transactions: %w", err)
	}
	defer rows.Close()

	funding, inMarket, outMarket, perf := money.Zero, money.Zero, money.Zero, money.Zero

	for rows.Next() {
		var amountStr, cat string
		if err := rows.Scan(&amountStr, &cat); err != nil {
			return fmt.Errorf("scan trade transaction: %w", err)
		}
		amt, err := money.Parse(amountStr)
		if err != nil {
			return err
		}
		switch cat {
		case "fund_trade":
			if funding, err = money.Add(funding, amt); err != nil {
				return err
			}
			if inMarket, err = money.Add(inMarket, amt); err != nil {
				return err
			}
		case "open_trade", "fee_open":
			// entry fill and opening fee consume capital already counted
			// as funding/in-market; they leave the trade balance unchanged.
		case "close_target", "close_safety_stop", "close_safety_stop_slippage":
			if outMarket, err = money.Add(outMarket, amt); err != nil {
				return err
			}
			if inMarket, err = money.Sub(inMarket, amt); err != nil {
				inMarket = money.Zero
			}
		case "payment_from_trade":
			if perf, err = money.Add(perf, amt); err != nil {
				return err
			}
		case "fee_close":
			if perf, err = money.Sub(perf, amt); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return PutBalanceTx(ctx, tx, Balance{
		TradeID: tradeID, Currency: currency, Funding: funding, CapitalInMarket: inMarket,
		CapitalOutMarket: outMarket, Taxed: money.Zero, TotalPerformance: perf,
	})
}
