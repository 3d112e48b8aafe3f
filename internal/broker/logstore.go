package broker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// LogStore persists the raw vendor payload of gateway calls as BrokerLog
// rows for audit. The trade lifecycle records its successful SubmitTrade and
// Close calls and the sync service its SyncTrade calls; other gateway calls
// are not recorded.
type LogStore struct {
	db *store.DB
}

// NewLogStore builds a LogStore over db.
func NewLogStore(db *store.DB) *LogStore { return &LogStore{db: db} }

// RecordTx inserts a Log row within an already-open transaction, so it
// commits atomically with the order/trade writes a gateway call produces.
func RecordTx(ctx context.Context, tx *sql.Tx, l Log, tradeID *string) (Log, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.TradeID = tradeID
	_, err := tx.ExecContext(ctx, `
		INSERT INTO broker_logs (id, trade_id, operation, payload, created_at) VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.TradeID, l.Operation, l.Payload, l.CreatedAt)
	if err != nil {
		return Log{}, fmt.Errorf("insert broker log: %w", err)
	}
	return l, nil
}

// Record inserts a Log row outside of any lifecycle transaction, for calls
// (SyncTrade, GetBars) that happen independently of a single trade write.
func (s *LogStore) Record(ctx context.Context, l Log) (Log, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO broker_logs (id, trade_id, operation, payload, created_at) VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.TradeID, l.Operation, l.Payload, l.CreatedAt)
	if err != nil {
		return Log{}, fmt.Errorf("insert broker log: %w", err)
	}
	return l, nil
}

// ForTrade returns every logged call for a trade, oldest first.
func (s *LogStore) ForTrade(ctx context.Context, tradeID string) ([]Log, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, trade_id, operation, payload, created_at FROM broker_logs
		WHERE trade_id = ? ORDER BY created_at
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("list broker logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		var tradeID sql.NullString
		if err := rows.Scan(&l.ID, &tradeID, &l.Operation, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan broker log: %w", err)
		}
		if tradeID.Valid {
			l.TradeID = &tradeID.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
