package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Store is the rules + level_state + level_changes repository.
type Store struct {
	db *store.DB
}

// NewStore builds a risk Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

// CreateRule inserts a new rule, defaulting Active to true.
func (s *Store) CreateRule(ctx context.Context, r Rule) (Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO rules (id, account_id, name, percentage, level, active, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.AccountID, r.Name, r.Percentage, r.Level, r.Active, r.Description, r.CreatedAt)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return r, nil
}

// Deactivate flips a rule's active flag to false (rules are never deleted).
func (s *Store) Deactivate(ctx context.Context, id string) error {
	_, err := s.db.SQL.ExecContext(ctx, `UPDATE rules SET active = 0 WHERE id = ?`, id)
	return err
}

// ListActive returns every active, non-deleted rule for an account, ordered
// by creation so callers see a stable priority order: insertion order is
// the simplest total order when nothing finer is specified.
func (s *Store) ListActive(ctx context.Context, accountID string) ([]Rule, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, account_id, name, percentage, level, active, description, created_at
		FROM rules WHERE account_id = ? AND active = 1 AND deleted_at IS NULL ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Name, &r.Percentage, &r.Level, &r.Active, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListAll returns every rule for an account regardless of active state, for
// `rule list`.
func (s *Store) ListAll(ctx context.Context, accountID string) ([]Rule, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, account_id, name, percentage, level, active, description, created_at
		FROM rules WHERE account_id = ? AND deleted_at IS NULL ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Name, &r.Percentage, &r.Level, &r.Active, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLevel returns the account's current level, defaulting to Level3 (the
// schema's own DEFAULT 3) if no row exists yet.
func (s *Store) GetLevel(ctx context.Context, accountID string) (LevelState, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT account_id, current_level, updated_at FROM level_state WHERE account_id = ?
	`, accountID)
	var ls LevelState
	var lvl int
	err := row.Scan(&ls.AccountID, &lvl, &ls.UpdatedAt)
	if err == sql.ErrNoRows {
		return LevelState{AccountID: accountID, CurrentLevel: Level3, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return LevelState{}, fmt.Errorf("scan level state: %w", err)
	}
	ls.CurrentLevel = Level(lvl)
	return ls, nil
}

// SetLevel upserts the account's level and appends a LevelChange history
// row, atomically.
func (s *Store) SetLevel(ctx context.Context, accountID string, newLevel Level, reason, triggerType string) (LevelState, LevelChange, error) {
	if !newLevel.Valid() {
		return LevelState{}, LevelChange{}, ErrInvalidLevel
	}
	current, err := s.GetLevel(ctx, accountID)
	if err != nil {
		return LevelState{}, LevelChange{}, err
	}

	change := NewLevelChange(accountID, current.CurrentLevel, newLevel, reason, triggerType)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO level_state (account_id, current_level, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(account_id) DO UPDATE SET current_level = excluded.current_level, updated_at = excluded.updated_at
		`, accountID, int(newLevel), now); err != nil {
			return fmt.Errorf("upsert level state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO level_changes (id, account_id, old_level, new_level, reason, trigger_type, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, change.ID, change.AccountID, int(change.OldLevel), int(change.NewLevel), change.Reason, change.TriggerType, change.At); err != nil {
			return fmt.Errorf("insert level change: %w", err)
		}
		return nil
	})
	if err != nil {
		return LevelState{}, LevelChange{}, err
	}
	return LevelState{AccountID: accountID, CurrentLevel: newLevel, UpdatedAt: change.At}, change, nil
}

// History returns an account's level changes, most recent first.
func (s *Store) History(ctx context.Context, accountID string) ([]LevelChange, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, account_id, old_level, new_level, reason, trigger_type, at
		FROM level_changes WHERE account_id = ? ORDER BY at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list level changes: %w", err)
	}
	defer rows.Close()

	var out []LevelChange
	for rows.Next() {
		var c LevelChange
		var old, new int
		if err := rows.Scan(&c.ID, &c.AccountID, &old, &new, &c.Reason, &c.TriggerType, &c.At); err != nil {
			return nil, fmt.Errorf("scan level change: %w", err)
		}
		c.OldLevel, c.NewLevel = Level(old), Level(new)
		out = append(out, c)
	}
	return out, rows.Err()
}
