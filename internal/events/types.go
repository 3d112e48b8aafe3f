package events

// Event enumerates the domain topics published on the Bus: trade lifecycle
// transitions, broker watch activity, and risk/level changes.
type Event string

const (
	EventTradeCreated Event = "trade.created"
	EventTradeFunded Event = "trade.funded"
	EventTradeSubmitted Event = "trade.submitted"
	EventTradeFilled Event = "trade.filled"
	EventTradeClosed Event = "trade.closed"
	EventTradeCanceled Event = "trade.canceled"
	EventTradeSynced Event = "trade.synced"

	EventOrderUpdate Event = "order.update"
	EventWatchTick Event = "watch.tick"
	EventWatchError Event = "watch.error"

	EventRiskLevelChanged Event = "risk.level_changed"
	EventRiskRuleBreach Event = "risk.rule_breach"

	EventDistributionExecuted Event = "distribution.executed"

	EventTradeGraded Event = "trade.graded"
)
