package orderbook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Store is the orders repository. Its one durable invariant —
// broker_order_id is immutable once set for the lifetime of an order row —
// is enforced here: SetBrokerOrderID refuses to overwrite a non-NULL value.
type Store struct {
	db *store.DB
}

// NewStore builds an orderbook Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

// CreateTx inserts a new order row within an existing transaction (orders
// are always created as part of TradeLifecycle.create_trade, which writes
// three orders and a trade atomically).
func CreateTx(ctx context.Context, tx *sql.Tx, o Order) (Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	var avgPrice *string
	if o.AverageFilledPrice != nil {
		s := o.AverageFilledPrice.String()
		avgPrice = &s
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, broker_order_id, trading_vehicle_id, currency, quantity, unit_price, category, action,
			status, time_in_force, filled_quantity, average_filled_price, submitted_at, filled_at,
			cancelled_at, expired_at, closed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.BrokerOrderID, o.TradingVehicleID, o.Currency, int64(o.Quantity), o.UnitPrice.String(),
		o.Category, o.Action, o.Status, o.TimeInForce, int64(o.FilledQuantity), avgPrice,
		o.SubmittedAt, o.FilledAt, o.CancelledAt, o.ExpiredAt, o.ClosedAt, o.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

// Get fetches an order by id.
func (s *Store) Get(ctx context.Context, id string) (Order, error) {
	return scanOne(s.db.SQL.QueryRowContext(ctx, selectCols+` FROM orders WHERE id = ?`, id))
}

// GetTx fetches an order by id within an existing transaction (for reads
// that must see uncommitted writes from the same lifecycle call).
func GetTx(ctx context.Context, tx *sql.Tx, id string) (Order, error) {
	return scanOne(tx.QueryRowContext(ctx, selectCols+` FROM orders WHERE id = ?`, id))
}

const selectCols = `
	SELECT id, broker_order_id, trading_vehicle_id, currency, quantity, unit_price, category, action,
	 status, time_in_force, filled_quantity, average_filled_price, submitted_at, filled_at,
	 cancelled_at, expired_at, closed_at, created_at`

func scanOne(row *sql.Row) (Order, error) {
	var o Order
	var brokerID, avgPrice sql.NullString
	var qty, filledQty int64
	var unitPrice string
	var submittedAt, filledAt, cancelledAt, expiredAt, closedAt sql.NullTime

	err := row.Scan(&o.ID, &brokerID, &o.TradingVehicleID, &o.Currency, &qty, &unitPrice, &o.Category,
		&o.Action, &o.Status, &o.TimeInForce, &filledQty, &avgPrice, &submittedAt, &filledAt,
		&cancelledAt, &expiredAt, &closedAt, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return Order{}, store.ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}

	o.Quantity = money.Quantity(qty)
	o.FilledQuantity = money.Quantity(filledQty)
	if o.UnitPrice, err = money.Parse(unitPrice); err != nil {
		return Order{}, err
	}
	if brokerID.Valid {
		v := brokerID.String
		o.BrokerOrderID = &v
	}
	if avgPrice.Valid {
		d, err := money.Parse(avgPrice.String)
		if err != nil {
			return Order{}, err
		}
		o.AverageFilledPrice = &d
	}
	if submittedAt.Valid {
		v := submittedAt.Time
		o.SubmittedAt = &v
	}
	if filledAt.Valid {
		v := filledAt.Time
		o.FilledAt = &v
	}
	if cancelledAt.Valid {
		v := cancelledAt.Time
		o.CancelledAt = &v
	}
	if expiredAt.Valid {
		v := expiredAt.Time
		o.ExpiredAt = &v
	}
	if closedAt.Valid {
		v := closedAt.Time
		o.ClosedAt = &v
	}
	return o, nil
}

// UpdateTx persists the full mutable state of an order within tx. Callers
// must never clear a non-NULL broker_order_id; this helper enforces that by
// reading the current value first.
func UpdateTx(ctx context.Context, tx *sql.Tx, o Order) error {
	existing, err := GetTx(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if existing.BrokerOrderID != nil && o.BrokerOrderID == nil {
		o.BrokerOrderID = existing.BrokerOrderID
	}

	var avgPrice *string
	if o.AverageFilledPrice != nil {
		s := o.AverageFilledPrice.String()
		avgPrice = &s
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET
			broker_order_id = ?, unit_price = ?, status = ?, filled_quantity = ?, average_filled_price = ?,
			submitted_at = ?, filled_at = ?, cancelled_at = ?, expired_at = ?, closed_at = ?
		WHERE id = ?
	`, o.BrokerOrderID, o.UnitPrice.String(), o.Status, int64(o.FilledQuantity), avgPrice,
		o.SubmittedAt, o.FilledAt, o.CancelledAt, o.ExpiredAt, o.ClosedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// SetBrokerOrderID sets broker_order_id the first time it is observed,
// refusing to overwrite an existing value.
func SetBrokerOrderID(ctx context.Context, tx *sql.Tx, orderID, brokerOrderID string) error {
	existing, err := GetTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if existing.BrokerOrderID != nil {
		return nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE orders SET broker_order_id = ? WHERE id = ?`, brokerOrderID, orderID)
	return err
}
