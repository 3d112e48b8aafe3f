// Package grading implements the GradingService: a four-component weighted
// grade (process/risk/execution/documentation), slippage-in-bps, MFE/MAE,
// ADV-20 and ATR-14 market-data backfill, all in integer-permille
// arithmetic over internal/money.
package grading

import (
	"fmt"
	"time"
)

// Grade is the letter grade a score maps to.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// ScoreToGrade maps a 0-100 score to its letter grade.
func ScoreToGrade(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Weights is the grading component weights, in permille so the sum-to-1000
// check is exact integer arithmetic rather than float comparison.
type Weights struct {
	Process uint16
	Risk uint16
	Execution uint16
	Documentation uint16
}

// DefaultWeights is process 40% / risk 30% / execution 20% / documentation
// 10%.
func DefaultWeights() Weights {
	return Weights{Process: 400, Risk: 300, Execution: 200, Documentation: 100}
}

// Validate reports an error unless the four weights sum to exactly 1000.
func (w Weights) Validate() error {
	sum := int(w.Process) + int(w.Risk) + int(w.Execution) + int(w.Documentation)
	if sum != 1000 {
		return fmt.Errorf("grading: weights must sum to 1000 permille, got %d", sum)
	}
	return nil
}

// TradeGrade is one persisted grading run.
type TradeGrade struct {
	ID string
	TradeID string
	OverallScore int
	OverallGrade Grade
	ProcessScore int
	RiskScore int
	ExecutionScore int
	DocumentationScore int
	Recommendations []string
	CreatedAt time.Time
}

// MarketDataStatus reports whether market-data-derived metrics were
// actually computed.
type MarketDataStatus string

const (
	MarketDataOK MarketDataStatus = "ok"
	MarketDataUnavailable MarketDataStatus = "unavailable"
	MarketDataUnsupported MarketDataStatus = "unsupported"
	MarketDataNotApplicable MarketDataStatus = "not_applicable"
)

// MarketDataDetails carries the execution-score's market-data-derived
// metrics, best-effort: any of these may be nil if bars were unavailable.
type MarketDataDetails struct {
	Status MarketDataStatus
	EntrySlippageBps *int
	ExitSlippageBps *int
	MFEBps *int
	MAEBps *int
	ADV20 *uint64
	ATR14 *float64
	StopDistanceATR *float64
}

// DetailedGrade is ComputeGrade's full result: the persistable TradeGrade
// plus the market-data detail that justified the execution component.
type DetailedGrade struct {
	Grade TradeGrade
	Weights Weights
	Market MarketDataDetails
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
