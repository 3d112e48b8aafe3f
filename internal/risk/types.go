// Package risk implements the RiskEngine: validators that gate every
// trade-lifecycle transition, the position-size calculator, the level
// engine, and the process-wide protected-mode flag.
package risk

import (
	"time"

	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
)

// Level is a risk-appetite tier in 1..5.
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
	Level4 Level = 4
	Level5 Level = 5
)

// Multiplier returns the size multiplier for l: 0, 0.25, 0.5, 1.0, 1.5 for
// levels 1..5 respectively.
func (l Level) Multiplier() float64 {
	switch l {
	case Level1:
		return 0
	case Level2:
		return 0.25
	case Level3:
		return 0.5
	case Level4:
		return 1.0
	case Level5:
		return 1.5
	default:
		return 0
	}
}

// Valid reports whether l is in the closed 1..5 range.
func (l Level) Valid() bool { return l >= Level1 && l <= Level5 }

// RuleName is the closed set of configurable rule kinds.
type RuleName string

const (
	RuleRiskPerTrade RuleName = "risk_per_trade"
	RuleRiskPerMonth RuleName = "risk_per_month"
)

// RuleLevel is the enforcement strength of a Rule: Error blocks,
// the others only annotate.
type RuleLevel string

const (
	LevelAdvice RuleLevel = "advice"
	LevelWarning RuleLevel = "warning"
	LevelError RuleLevel = "error"
)

// Rule is one configured risk constraint on an account.
type Rule struct {
	ID string
	AccountID string
	Name RuleName
	Percentage float64 // the pct argument of RiskPerTrade(pct)/RiskPerMonth(pct)
	Level RuleLevel
	Active bool
	Description string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// LevelState is the current level and its update timestamp for an account.
type LevelState struct {
	AccountID string
	CurrentLevel Level
	UpdatedAt time.Time
}

// LevelChange is one row in an account's level history.
type LevelChange struct {
	ID string
	AccountID string
	OldLevel Level
	NewLevel Level
	Reason string
	TriggerType string // "risk_breach_monthly_loss" | "performance_upgrade" | "manual_override" |...
	At time.Time
}

var (
	ErrRuleBreach = errs.New(errs.KindValidation, "RiskRuleBreach", "trade violates an active risk rule")
	ErrProtectedKeywordNeeded = errs.New(errs.KindValidation, "ProtectedKeywordRequired", "protected mode is armed; a valid keyword is required")
	ErrInvalidLevel = errs.New(errs.KindValidation, "InvalidLevel", "level must be in 1..5")
)

// RuleBreachError carries the offending rule's name so callers can report
// RiskRuleBreach(name) precisely.
type RuleBreachError struct {
	Rule RuleName
}

func (e *RuleBreachError) Error() string { return "risk rule breach: " + string(e.Rule) }
func (e *RuleBreachError) Is(target error) bool { return target == ErrRuleBreach }

// PerformanceSnapshot is the input to the level engine's recommendation.
type PerformanceSnapshot struct {
	ProfitableTrades int
	WinRate float64
	MonthlyLoss money.Decimal
	LargestLoss money.Decimal
	ConsecutiveWins int
}
