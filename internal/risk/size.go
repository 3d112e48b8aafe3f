package risk

import (
	"context"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
)

// SizeInput bundles the per-call inputs to the position-size calculator.
type SizeInput struct {
	AccountID string
	EntryPrice money.Decimal
	StopPrice money.Decimal
	Currency money.Currency
}

// MonthlyBudgetData is the data the monthly-budget computation needs,
// gathered by a MonthDataProvider (MonthDataStore in monthdata.go runs the
// queries); the calculators in this file take it as plain input.
type MonthlyBudgetData struct {
	// BalanceAtMonthStart is the account balance as of the first of the
	// current month.
	BalanceAtMonthStart money.Decimal
	// CurrentBalance is B_now.
	CurrentBalance money.Decimal
	// OpenTradeRisk is Σ open_trade_risk across the account's open trades:
	// |entry.unit_price - safety_stop.unit_price| * quantity, summed.
	OpenTradeRisk money.Decimal
	// MonthlyBudgetSoFar is the budget already computed/consumed earlier
	// this month (tracked by the caller across calls within the month; zero
	// at the first call).
MonthlyBudgetSoFar money.Decimal
}

// MonthlyBudget computes how much capital remains available to risk for
// the rest of the month, branching on the account's current P&L state
// relative to its monthly budget.
func MonthlyBudget(data MonthlyBudgetData, monthlyPct float64) (money.Decimal, error) {
	b0 := data.BalanceAtMonthStart
	bNow := data.CurrentBalance

	// P = B_now - B0 - open_trade_risk
	diff, err := money.Sub(bNow, b0)
	if err != nil {
		return money.Zero, err
	}
	p, err := money.Sub(diff, data.OpenTradeRisk)
	if err != nil {
		return money.Zero, err
	}

	switch {
	case p.IsZero():
		// First trade of the month: budget = B0 * monthly_pct.
		return money.MulFloat(b0, monthlyPct/100)
	case p.IsPositive() && !p.GreaterThan(data.MonthlyBudgetSoFar):
		// 0 < P <= monthly_budget_so_far: remaining = budget_so_far - P.
		remaining, err := money.Sub(data.MonthlyBudgetSoFar, p)
		if err != nil {
			return money.Zero, err
		}
		if remaining.IsNegative() {
			return money.Zero, nil
		}
		return remaining, nil
	case p.IsNegative():
		// Net profit this month: budget resets to (B_now + open_trade_risk) * monthly_pct.
		base, err := money.Add(bNow, data.OpenTradeRisk)
		if err != nil {
			return money.Zero, err
		}
		return money.MulFloat(base, monthlyPct/100)
	default:
		return money.Zero, nil
	}
}

// Size is the position-size computation's full result, including the
// intermediate values a caller (the CLI's size-preview, tests) may want to
// display.
type Size struct {
	RiskPerShare money.Decimal
	MonthlyBudget money.Decimal
	PerTradeCap money.Decimal
	BaseQuantity money.Quantity
	CurrentQuantity money.Quantity
}

// Calculate runs the seven-step sizing algorithm:
// 1. risk_per_share = |entry - stop|
// 2. (rules are supplied by the caller, already sorted by priority)
// 3. monthly_budget via MonthlyBudget
// 4. per_trade_cap = available * risk_per_trade_pct / 100
// 5. if per_trade_cap > monthly_budget: quantity 0
// 6. base_quantity = floor(per_trade_cap / risk_per_share)
// 7. current_quantity = floor(base_quantity * level_multiplier)
func Calculate(in SizeInput, available money.Decimal, riskPerTradePct float64, budget MonthlyBudgetData, monthlyPct float64, level Level) (Size, error) {
	riskPerShare := money.Abs(mustSub(in.EntryPrice, in.StopPrice))

	monthlyBudget, err := MonthlyBudget(budget, monthlyPct)
	if err != nil {
		return Size{}, err
	}

	perTradeCap, err := money.MulFloat(available, riskPerTradePct/100)
	if err != nil {
		return Size{}, err
	}

	if perTradeCap.GreaterThan(monthlyBudget) {
		return Size{RiskPerShare: riskPerShare, MonthlyBudget: monthlyBudget, PerTradeCap: perTradeCap}, nil
	}

	if riskPerShare.IsZero() {
		return Size{RiskPerShare: riskPerShare, MonthlyBudget: monthlyBudget, PerTradeCap: perTradeCap}, nil
	}

	base, err := money.FloorDiv(perTradeCap, riskPerShare)
	if err != nil {
		return Size{}, err
	}

	currentDec, err := money.MulFloat(base.Decimal(), level.Multiplier())
	if err != nil {
		return Size{}, err
	}
	current, err := money.FloorDiv(currentDec, money.NewFromInt(1))
	if err != nil {
		return Size{}, err
	}

	return Size{
		RiskPerShare: riskPerShare,
		MonthlyBudget: monthlyBudget,
		PerTradeCap: perTradeCap,
		BaseQuantity: base,
		CurrentQuantity: current,
	}, nil
}

func mustSub(a, b money.Decimal) money.Decimal {
	r, err := money.Sub(a, b)
	if err != nil {
		// entry/stop prices are bounded well inside the overflow guard;
		// a failure here means an upstream unit/scale bug, not user input.
		return money.Zero
	}
	return r
}

// MonthDataProvider feeds MonthlyBudgetData to the size calculator;
// MonthDataStore in monthdata.go is the database-backed implementation.
type MonthDataProvider interface {
	MonthlyBudgetData(ctx context.Context, accountID string, currency money.Currency, monthStart time.Time) (MonthlyBudgetData, error)
	// RecordBudget persists the budget Calculate just produced for
	// (accountID, currency, monthStart), so the next call within the same
	// month sees it back as MonthlyBudgetSoFar.
	RecordBudget(ctx context.Context, accountID string, currency money.Currency, monthStart time.Time, budget money.Decimal) error
}
