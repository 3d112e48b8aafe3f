package grading

import (
	"math"
	"strings"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/trade"
)

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// scoreDocumentation rewards a filled-in thesis/context/sector/asset_class
// with a 40/30/15/15 split.
func scoreDocumentation(t trade.Trade) (int, []string) {
	score := 0
	var recs []string

	if trimmed(t.Thesis) != "" {
		score += 40
	} else {
		recs = append(recs, "Add a trade thesis (why this trade exists)")
	}
	if trimmed(t.Context) != "" {
		score += 30
	} else {
		recs = append(recs, "Add trade context (setup, signals, levels)")
	}
	if trimmed(t.Sector) != "" {
		score += 15
	} else {
		recs = append(recs, "Set trade sector (for later analysis)")
	}
	if trimmed(t.AssetClass) != "" {
		score += 15
	} else {
		recs = append(recs, "Set trade asset_class (for later analysis)")
	}
	return clampScore(score), recs
}

func plannedStopDistance(cat trade.Category, entry, stop money.Decimal) (money.Decimal, bool) {
	var d money.Decimal
	var err error
	switch cat {
	case trade.Long:
		d, err = money.Sub(entry, stop)
	case trade.Short:
		d, err = money.Sub(stop, entry)
	default:
		return money.Zero, false
	}
	if err != nil {
		return money.Zero, false
	}
	return d, true
}

func plannedRewardDistance(cat trade.Category, entry, target money.Decimal) (money.Decimal, bool) {
	var d money.Decimal
	var err error
	switch cat {
	case trade.Long:
		d, err = money.Sub(target, entry)
	case trade.Short:
		d, err = money.Sub(entry, target)
	default:
		return money.Zero, false
	}
	if err != nil {
		return money.Zero, false
	}
	return d, true
}

func plannedRRRatio(cat trade.Category, entry, stop, target money.Decimal) (money.Decimal, bool) {
	risk, ok := plannedStopDistance(cat, entry, stop)
	if !ok || !risk.IsPositive() {
		return money.Zero, false
	}
	reward, ok := plannedRewardDistance(cat, entry, target)
	if !ok {
		return money.Zero, false
	}
	ratio, err := money.Div(reward, risk)
	if err != nil {
		return money.Zero, false
	}
	return ratio, true
}

// scoreProcess rewards the planned bracket shape (limit entry/target, stop
// exit) and a planned risk:reward of at least 2:1.
func scoreProcess(t trade.Trade, entry, target, stop orderbook.Order) (int, []string) {
	score := 100
	var recs []string

	if entry.Category != orderbook.Limit {
		score -= 10
		recs = append(recs, "Use limit orders for entries (reduce slippage)")
	}
	if target.Category != orderbook.Limit {
		score -= 10
		recs = append(recs, "Use limit orders for targets when possible")
	}
	if stop.Category != orderbook.Stop {
		score -= 10
		recs = append(recs, "Use stop orders for safety stops")
	}

	rr, ok := plannedRRRatio(t.Category, entry.UnitPrice, stop.UnitPrice, target.UnitPrice)
	switch {
	case !ok:
		score -= 20
		recs = append(recs, "Planned R:R could not be computed (check entry/stop/target prices)")
	case rr.LessThan(money.NewFromInt(1)):
		score -= 40
		recs = append(recs, "Planned R:R is < 1.0 (rework entry/stop/target)")
	case rr.LessThan(money.MustParse("1.5")):
		score -= 25
		recs = append(recs, "Planned R:R is < 1.5 (consider improving target or tightening stop)")
	case rr.LessThan(money.NewFromInt(2)):
		score -= 10
		recs = append(recs, "Planned R:R is < 2.0 (aim for >= 2.0 when possible)")
	}

	return clampScore(score), recs
}

// scoreRisk checks stop-before-entry ordering and planned risk against
// account equity and any active risk_per_trade rule: a 2% fallback ceiling
// plus per-account overrides.
func scoreRisk(t trade.Trade, entry, stop orderbook.Order, equity money.Decimal, rules []risk.Rule) (int, []string) {
	score := 100
	var recs []string

	if stop.SubmittedAt != nil && entry.FilledAt != nil {
		if stop.SubmittedAt.After(*entry.FilledAt) {
			score -= 30
			recs = append(recs, "Stop order was submitted after entry filled (submit stop before entry execution)")
		}
	} else if entry.FilledAt != nil {
		score -= 10
		recs = append(recs, "Stop submission timestamp missing (ensure bracket orders are submitted)")
	}

	if !equity.IsPositive() {
		score -= 10
		recs = append(recs, "Account equity unavailable for risk checks")
		return clampScore(score), recs
	}

	entryFill := entry.UnitPrice
	if entry.AverageFilledPrice != nil {
		entryFill = *entry.AverageFilledPrice
	}
	perShare, ok := plannedStopDistance(t.Category, entryFill, stop.UnitPrice)
	if !ok {
		return clampScore(score), recs
	}
	riskAmount, err := money.Mul(perShare, entry.Quantity.Decimal())
	if err != nil {
		return clampScore(score), recs
	}
	riskPct, err := money.Mul(riskAmount, money.NewFromInt(100))
	if err != nil {
		return clampScore(score), recs
	}
	riskPct, err = money.Div(riskPct, equity)
	if err != nil {
		return clampScore(score), recs
	}

	if riskPct.GreaterThan(money.NewFromInt(2)) {
		score -= 20
		recs = append(recs, "Planned risk exceeds 2% of equity (consider smaller size or tighter stop)")
	}

	for _, r := range rules {
		if r.Name != risk.RuleRiskPerTrade || !r.Active {
			continue
		}
		limit, err := money.MulFloat(money.NewFromInt(1), r.Percentage)
		if err != nil || !limit.IsPositive() {
			continue
		}
		if riskPct.GreaterThan(limit) {
			score -= 25
			recs = append(recs, "Planned risk exceeds the account's risk_per_trade rule")
		}
	}

	return clampScore(score), recs
}

// intendedExitPrice returns what the trade was supposed to exit at, for
// exit-slippage comparison.
func intendedExitPrice(t trade.Trade, target, stop orderbook.Order) (money.Decimal, bool) {
	switch t.Status {
	case trade.StatusClosedTarget, trade.StatusCanceled:
		return target.UnitPrice, true
	case trade.StatusClosedStopLoss:
		return stop.UnitPrice, true
	default:
		return money.Zero, false
	}
}

// bestEffortExitFill returns the exit leg's actual fill price and time,
// falling back to the intended price only for already-closed trades; a
// canceled trade with no real exit fill yields (false, false) rather than a
// synthetic one.
func bestEffortExitFill(t trade.Trade, target, stop orderbook.Order) (money.Decimal, bool, *time.Time) {
	switch t.Status {
	case trade.StatusClosedTarget:
		if target.AverageFilledPrice != nil {
			return *target.AverageFilledPrice, true, target.FilledAt
		}
		return target.UnitPrice, true, target.FilledAt
	case trade.StatusClosedStopLoss:
		if stop.AverageFilledPrice != nil {
			return *stop.AverageFilledPrice, true, stop.FilledAt
		}
		return stop.UnitPrice, true, stop.FilledAt
	case trade.StatusCanceled:
		if target.AverageFilledPrice != nil {
			return *target.AverageFilledPrice, true, target.FilledAt
		}
		return money.Zero, false, nil
	default:
		return money.Zero, false, nil
	}
}

func slippageBps(fill money.Decimal, hasFill bool, intended money.Decimal) (int, bool) {
	if !hasFill || !intended.IsPositive() {
		return 0, false
	}
	diff, err := money.Sub(fill, intended)
	if err != nil {
		return 0, false
	}
	diff = money.Abs(diff)
	bps, err := money.Mul(diff, money.NewFromInt(10000))
	if err != nil {
		return 0, false
	}
	bps, err = money.Div(bps, intended)
	if err != nil {
		return 0, false
	}
	return int(math.Round(bps.Float64())), true
}

// scoreExecution scores entry/exit slippage plus, when bars are available,
// MFE/MAE/ADV20/stop-distance-in-ATR market-data checks.
func scoreExecution(t trade.Trade, entry, target, stop orderbook.Order, bars []broker.MarketBar) (int, []string, MarketDataDetails) {
	score := 100
	var recs []string
	details := MarketDataDetails{Status: MarketDataNotApplicable}

	entryFill, hasEntryFill := entry.UnitPrice, true
	if entry.AverageFilledPrice != nil {
		entryFill = *entry.AverageFilledPrice
	} else if entry.FilledAt == nil {
		hasEntryFill = false
	}
	entrySlip, entryOK := slippageBps(entryFill, hasEntryFill, entry.UnitPrice)
	if entryOK {
		details.EntrySlippageBps = &entrySlip
		if entrySlip > 50 {
			score -= 10
			recs = append(recs, "Entry slippage > 0.50% (consider limit orders / more liquidity)")
		} else if entrySlip > 10 {
			score -= 5
			recs = append(recs, "Entry slippage > 0.10% (review execution)")
		}
	} else {
		score -= 10
		recs = append(recs, "Entry fill data missing (cannot compute slippage)")
	}

	exitFill, hasExitFill, exitTime := bestEffortExitFill(t, target, stop)
	intended, hasIntended := intendedExitPrice(t, target, stop)
	var exitSlip int
	var exitOK bool
	if hasIntended {
		exitSlip, exitOK = slippageBps(exitFill, hasExitFill, intended)
	}
	if exitOK {
		details.ExitSlippageBps = &exitSlip
		if exitSlip > 80 {
			score -= 15
			recs = append(recs, "Exit slippage > 0.80% (review order timing/placement)")
		} else if exitSlip > 20 {
			score -= 7
			recs = append(recs, "Exit slippage > 0.20% (review execution)")
		}
	} else {
		score -= 10
		recs = append(recs, "Exit fill data missing (cannot compute slippage)")
	}

	if len(bars) > 0 {
		details.Status = MarketDataOK
		if entry.FilledAt != nil && exitTime != nil && exitTime.After(*entry.FilledAt) {
			mfe, mae := mfeMaeBps(t.Category, entryFill, bars)
			details.MFEBps, details.MAEBps = mfe, mae
		}
		if adv := adv20FromBars(bars); adv != nil {
			details.ADV20 = adv
			if *adv < 500_000 {
				score -= 10
				recs = append(recs, "Low average daily volume (ADV20 < 500k); expect worse slippage")
			}
		}
		if atr := atr14FromBars(bars); atr != nil {
			details.ATR14 = atr
			if perShare, ok := plannedStopDistance(t.Category, entry.UnitPrice, stop.UnitPrice); ok && *atr > 0 {
				stopATR := perShare.Float64() / *atr
				details.StopDistanceATR = &stopATR
				if stopATR < 1.0 {
					score -= 10
					recs = append(recs, "Stop distance < 1 ATR (may be inside normal noise)")
				}
			}
		}
	} else if entry.FilledAt != nil {
		details.Status = MarketDataUnavailable
	}

	return clampScore(score), recs, details
}

// mfeMaeBps computes maximum-favorable/adverse-excursion in bps over bars,
// the window between entry and exit.
func mfeMaeBps(cat trade.Category, entry money.Decimal, bars []broker.MarketBar) (*int, *int) {
	if len(bars) == 0 || !entry.IsPositive() {
		return nil, nil
	}
	maxHigh, minLow := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High.GreaterThan(maxHigh) {
			maxHigh = b.High
		}
		if b.Low.LessThan(minLow) {
			minLow = b.Low
		}
	}

	bpsOf := func(diff money.Decimal) *int {
		bps, err := money.Mul(diff, money.NewFromInt(10000))
		if err != nil {
			return nil
		}
		bps, err = money.Div(bps, entry)
		if err != nil {
			return nil
		}
		v := int(math.Round(bps.Float64()))
		return &v
	}

	switch cat {
	case trade.Long:
		hi, _ := money.Sub(maxHigh, entry)
		lo, _ := money.Sub(entry, minLow)
		return bpsOf(hi), bpsOf(lo)
	case trade.Short:
		hi, _ := money.Sub(entry, minLow)
		lo, _ := money.Sub(maxHigh, entry)
		return bpsOf(hi), bpsOf(lo)
	default:
		return nil, nil
	}
}

// atr14FromBars computes the average true range over the last 14 of at
// least 15 bars (the extra bar supplies the first previous-close).
func atr14FromBars(bars []broker.MarketBar) *float64 {
	if len(bars) < 15 {
		return nil
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high, low, prevClose := bars[i].High.Float64(), bars[i].Low.Float64(), bars[i-1].Close.Float64()
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	if len(trs) < 14 {
		return nil
	}
	window := trs[len(trs)-14:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	atr := sum / 14
	return &atr
}

// adv20FromBars averages volume over the last 20 bars.
func adv20FromBars(bars []broker.MarketBar) *uint64 {
	if len(bars) < 20 {
		return nil
	}
	window := bars[len(bars)-20:]
	var sum float64
	for _, b := range window {
		sum += b.Volume.Float64()
	}
	avg := uint64(sum / 20)
	return &avg
}

// weightedScore combines component scores with permille weights, rounding
// half-up to an integer 0..100 grade.
func weightedScore(process, risk, execution, documentation int, w Weights) int {
	sum := process*int(w.Process) + risk*int(w.Risk) + execution*int(w.Execution) + documentation*int(w.Documentation)
	return clampScore((sum + 500) / 1000)
}
