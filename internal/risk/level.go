package risk

import (
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/money"
)

// LevelThresholds configures the level engine's recommendation boundaries.
// Defaults are conservative starting points; an operator tunes them via
// `level rules set`.
type LevelThresholds struct {
	UpgradeWinRate float64 // win rate required to recommend moving up a level
	UpgradeConsecutiveWins int
	DowngradeMonthlyLossPct float64 // monthly loss, as a fraction of starting balance, that forces a downgrade
	DowngradeLargestLoss money.Decimal
}

// DefaultThresholds is a conservative starting point: a 60% win rate or
// three consecutive wins earns an upgrade recommendation; a
// monthly loss over 6% of starting balance, or any single loss exceeding
// the largest-loss guard, forces a downgrade recommendation.
func DefaultThresholds() LevelThresholds {
	return LevelThresholds{
		UpgradeWinRate: 0.60,
		UpgradeConsecutiveWins: 3,
		DowngradeMonthlyLossPct: 0.06,
		DowngradeLargestLoss: money.MustParse("1000"),
	}
}

// Progress enumerates the upgrade and downgrade paths the level engine
// considered, keyed by rule name.
type Progress struct {
	CurrentLevel Level
	RecommendedLevel Level
	Paths map[string]PathStatus
}

// PathStatus reports whether one named rule's condition is currently met.
type PathStatus struct {
	RuleName string
	Met bool
	Detail string
}

// Recommend evaluates perf against thresholds and returns the recommended
// level plus the progress breakdown.
func Recommend(current Level, perf PerformanceSnapshot, monthStartBalance money.Decimal, th LevelThresholds) Progress {
	paths := map[string]PathStatus{}

	lossPct := 0.0
	if monthStartBalance.IsPositive() {
		ratio, err := money.Div(perf.MonthlyLoss, monthStartBalance)
		if err == nil {
			lossPct = ratio.Float64()
		}
	}
	monthlyBreach := lossPct >= th.DowngradeMonthlyLossPct
	paths["risk_breach_monthly_loss"] = PathStatus{
		RuleName: "risk_breach_monthly_loss", Met: monthlyBreach,
		Detail: "monthly loss vs. start-of-month balance",
	}

	largestBreach := perf.LargestLoss.GreaterThanOrEqual(th.DowngradeLargestLoss)
	paths["risk_breach_largest_loss"] = PathStatus{
		RuleName: "risk_breach_largest_loss", Met: largestBreach,
		Detail: "single largest loss vs. configured guard",
	}

	upgrade := perf.WinRate >= th.UpgradeWinRate || perf.ConsecutiveWins >= th.UpgradeConsecutiveWins
	paths["performance_upgrade"] = PathStatus{
		RuleName: "performance_upgrade", Met: upgrade,
		Detail: "win rate or consecutive-win streak clears the upgrade bar",
	}

	paths["manual_override"] = PathStatus{RuleName: "manual_override", Met: false, Detail: "set only by an explicit `level change` command"}

	recommended := current
	switch {
	case monthlyBreach || largestBreach:
		if recommended > Level1 {
			recommended--
		}
	case upgrade:
		if recommended < Level5 {
			recommended++
		}
	}

	return Progress{CurrentLevel: current, RecommendedLevel: recommended, Paths: paths}
}

// NewLevelChange builds a history row recording a level transition.
func NewLevelChange(accountID string, old, new Level, reason, triggerType string) LevelChange {
	return LevelChange{
		ID: uuid.NewString(), AccountID: accountID, OldLevel: old, NewLevel: new,
		Reason: reason, TriggerType: triggerType, At: time.Now().UTC(),
	}
}
