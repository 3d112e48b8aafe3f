package grading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Store is the trade_grades repository.
type Store struct {
	db *store.DB
}

// NewStore builds a grading Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

// recommendations are newline-joined in the TEXT column; none of the
// generated recommendation strings contain a newline.
func joinRecs(recs []string) string { return strings.Join(recs, "\n") }
func splitRecs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Create inserts a new trade_grades row, assigning an id and created_at if
// unset.
func (s *Store) Create(ctx context.Context, g TradeGrade) (TradeGrade, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO trade_grades (id, trade_id, overall_score, overall_grade, process_score, risk_score, execution_score, documentation_score, recommendations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.TradeID, g.OverallScore, string(g.OverallGrade), g.ProcessScore, g.RiskScore, g.ExecutionScore, g.DocumentationScore, joinRecs(g.Recommendations), g.CreatedAt)
	if err != nil {
		return TradeGrade{}, fmt.Errorf("insert trade grade: %w", err)
	}
	return g, nil
}

func scanGrade(row interface {
	Scan(dest ...any) error
}) (TradeGrade, error) {
	var g TradeGrade
	var grade, recs string
	if err := row.Scan(&g.ID, &g.TradeID, &g.OverallScore, &grade, &g.ProcessScore, &g.RiskScore, &g.ExecutionScore, &g.DocumentationScore, &recs, &g.CreatedAt); err != nil {
		return TradeGrade{}, err
	}
	g.OverallGrade = Grade(grade)
	g.Recommendations = splitRecs(recs)
	return g, nil
}

// LatestForTrade returns the most recently created grade for tradeID.
func (s *Store) LatestForTrade(ctx context.Context, tradeID string) (TradeGrade, bool, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT id, trade_id, overall_score, overall_grade, process_score, risk_score, execution_score, documentation_score, recommendations, created_at
		FROM trade_grades WHERE trade_id = ? ORDER BY created_at DESC LIMIT 1
	`, tradeID)
	g, err := scanGrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeGrade{}, false, nil
		}
		return TradeGrade{}, false, fmt.Errorf("scan trade grade: %w", err)
	}
	return g, true, nil
}

// ForAccountDays returns every grade recorded within the last `days` days
// for trades belonging to accountID, most recent first.
func (s *Store) ForAccountDays(ctx context.Context, accountID string, days int) ([]TradeGrade, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT tg.id, tg.trade_id, tg.overall_score, tg.overall_grade, tg.process_score, tg.risk_score, tg.execution_score, tg.documentation_score, tg.recommendations, tg.created_at
		FROM trade_grades tg
		JOIN trades t ON t.id = tg.trade_id
		WHERE t.account_id = ? AND tg.created_at >= ?
		ORDER BY tg.created_at DESC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list trade grades: %w", err)
	}
	defer rows.Close()

	var out []TradeGrade
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade grade: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
