package risk

import (
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

// FundCheck bundles everything CanFund needs to gate a New->Funded
// transition on risk grounds. Status/geometry
// preconditions are the TradeLifecycle's job (trade.RequireTransition,
// trade.ValidateGeometry); this package only owns the risk-specific half:
// available funds and rule evaluation.
type FundCheck struct {
	AccountAvailable money.Decimal
	RequiredCapital money.Decimal
	Rules []Rule
	Size Size
	EntryQuantity money.Quantity
}

var ErrInsufficientFunds = errs.New(errs.KindValidation, "InsufficientFunds", "account available balance is below the capital this trade requires")

// CanFund gates a New->Funded transition on risk grounds: account
// available >= required capital, then every active Error-level rule.
func CanFund(c FundCheck) error {
	if c.AccountAvailable.LessThan(c.RequiredCapital) {
		return ErrInsufficientFunds
	}
	return evaluateRules(c)
}

// evaluateRules checks the funded quantity against every active Error-level
// rule. Non-Error rules never block: Error-level rules block, others only
// annotate.
func evaluateRules(c FundCheck) error {
	for _, r := range c.Rules {
		if !r.Active || r.Level != LevelError {
			continue
		}
		switch r.Name {
		case RuleRiskPerTrade:
			actualRisk, err := money.Mul(c.Size.RiskPerShare, c.EntryQuantity.Decimal())
			if err == nil && actualRisk.GreaterThan(c.Size.PerTradeCap) {
				return &RuleBreachError{Rule: RuleRiskPerTrade}
			}
		case RuleRiskPerMonth:
			if c.Size.PerTradeCap.GreaterThan(c.Size.MonthlyBudget) {
				return &RuleBreachError{Rule: RuleRiskPerMonth}
			}
		}
	}
	return nil
}

// CanCancelSubmitted gates a cancel on risk grounds: no child order may
// already be filled. Status precondition is the lifecycle's job.
func CanCancelSubmitted(entry, target, stop orderbook.Order) error {
	if entry.FilledQuantity > 0 || target.FilledQuantity > 0 || stop.FilledQuantity > 0 {
		return ErrChildOrderFilled
	}
	return nil
}

var ErrChildOrderFilled = errs.New(errs.KindState, "ChildOrderFilled", "cannot cancel a submitted trade once any child order has a fill")

// CanModifyStop gates a stop modification on risk grounds: the new stop
// must not widen risk and must preserve geometry against the fill price. isLong
// distinguishes the Long/Short sign convention without this package
// depending on the trade package's Category type.
func CanModifyStop(isLong bool, fillPrice, currentStop, newStop money.Decimal) error {
	if isLong {
		if newStop.LessThan(currentStop) {
			return ErrStopWidensRisk
		}
		if !newStop.LessThan(fillPrice) {
			return ErrStopGeometry
		}
		return nil
	}
	if newStop.GreaterThan(currentStop) {
		return ErrStopWidensRisk
	}
	if !newStop.GreaterThan(fillPrice) {
		return ErrStopGeometry
	}
	return nil
}

var (
	ErrStopWidensRisk = errs.New(errs.KindValidation, "StopWidensRisk", "new stop would widen the risk envelope versus the current stop")
	ErrStopGeometry = errs.New(errs.KindValidation, "StopGeometry", "new stop must remain on the correct side of the fill price")
)
