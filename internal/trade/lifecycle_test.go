package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/broker/paper"
	"github.com/matiasvillaverde/trust-core/internal/ledger"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

type testHarness struct {
	lifecycle *Lifecycle
	trades *Store
	orders *orderbook.Store
	gateway *paper.Broker
	accounts *account.Store
	accountID string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := account.NewStore(db)
	acc, err := accounts.Create(context.Background(), account.Account{Name: "primary", AccountType: account.Primary})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	led := ledger.New(db, accounts)
	if _, _, err := led.Deposit(context.Background(), acc.ID, money.USD, money.MustParse("100000")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	trades := NewStore(db)
	orders := orderbook.NewStore(db)
	vehicles := orderbook.NewVehicleStore(db)
	riskStore := risk.NewStore(db)
	monthData := risk.NewMonthDataStore(db)
	gw := paper.New()

	lc := NewLifecycle(db, trades, orders, vehicles, accounts, led, riskStore, monthData, gw)
	return &testHarness{lifecycle: lc, trades: trades, orders: orders, gateway: gw, accounts: accounts, accountID: acc.ID}
}

func (h *testHarness) createTrade(t *testing.T) Trade {
	t.Helper()
	tr, err := h.lifecycle.CreateTrade(context.Background(), DraftTrade{
		AccountID: h.accountID, Symbol: "AAPL", VehicleCategory: orderbook.Stocks, BrokerName: "paper",
		Category: Long, Currency: money.USD,
		EntryPrice: money.MustParse("100"), TargetPrice: money.MustParse("120"), StopPrice: money.MustParse("90"),
		Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	return tr
}

func (h *testHarness) fundedTrade(t *testing.T) Trade {
	t.Helper()
	tr := h.createTrade(t)
	funded, err := h.lifecycle.FundTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("fund trade: %v", err)
	}
	return funded
}

func (h *testHarness) submittedTrade(t *testing.T) Trade {
	t.Helper()
	tr := h.fundedTrade(t)
	submitted, err := h.lifecycle.SubmitTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("submit trade: %v", err)
	}
	return submitted
}

func (h *testHarness) filledTrade(t *testing.T) Trade {
	t.Helper()
	tr := h.submittedTrade(t)
	filled, err := h.lifecycle.FillTrade(context.Background(), tr.ID, money.MustParse("100"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("fill trade: %v", err)
	}
	return filled
}

func TestCreateTradeWritesThreeOrdersInStatusNew(t *testing.T) {
	h := newTestHarness(t)
	tr := h.createTrade(t)

	if tr.Status != StatusNew {
		t.Fatalf("status=%s, expected new", tr.Status)
	}
	for _, id := range []string{tr.EntryOrderID, tr.TargetOrderID, tr.SafetyStopOrderID} {
		o, err := h.orders.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get order %s: %v", id, err)
		}
		if o.Status != orderbook.StatusNew {
			t.Fatalf("order %s status=%s, expected new", id, o.Status)
		}
	}
}

func TestFundTradeMovesCapitalAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.createTrade(t)

	funded, err := h.lifecycle.FundTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("fund trade: %v", err)
	}
	if funded.Status != StatusFunded {
		t.Fatalf("status=%s, expected funded", funded.Status)
	}
	bal, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal.TotalAvailable.String() != "99000" {
		t.Fatalf("available=%s, expected 99000 after funding a 1000 trade", bal.TotalAvailable.String())
	}

	// Calling FundTrade again on an already-Funded trade must be a no-op:
	// no second capital move, no error.
	again, err := h.lifecycle.FundTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("repeat fund trade: %v", err)
	}
	if again.Status != StatusFunded {
		t.Fatalf("status=%s, expected funded", again.Status)
	}
	balAfter, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance after repeat: %v", err)
	}
	if balAfter.TotalAvailable.String() != "99000" {
		t.Fatalf("available=%s, expected unchanged 99000 after repeat FundTrade", balAfter.TotalAvailable.String())
	}
}

func TestFundTradeInsufficientFundsFails(t *testing.T) {
	h := newTestHarness(t)
	tr := h.createTrade(t)

	// A trade whose required capital (entry price * quantity) exceeds the
	// seeded balance must fail to fund.
	big, err := h.lifecycle.CreateTrade(context.Background(), DraftTrade{
		AccountID: h.accountID, Symbol: "GOOG", VehicleCategory: orderbook.Stocks, BrokerName: "paper",
		Category: Long, Currency: money.USD,
		EntryPrice: money.MustParse("1000000"), TargetPrice: money.MustParse("1100000"), StopPrice: money.MustParse("900000"),
		Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create big trade: %v", err)
	}
	if _, err := h.lifecycle.FundTrade(context.Background(), big.ID); err == nil {
		t.Fatal("expected FundTrade to fail when required capital exceeds available funds")
	}

	if _, err := h.lifecycle.FundTrade(context.Background(), tr.ID); err != nil {
		t.Fatalf("fund trade: %v", err)
	}
}

func TestSubmitTradeStampsBrokerOrderIDsAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.fundedTrade(t)

	submitted, err := h.lifecycle.SubmitTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("submit trade: %v", err)
	}
	if submitted.Status != StatusSubmitted {
		t.Fatalf("status=%s, expected submitted", submitted.Status)
	}
	entry, err := h.orders.Get(context.Background(), submitted.EntryOrderID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.BrokerOrderID == nil || *entry.BrokerOrderID == "" {
		t.Fatal("expected entry order to carry a broker order id after submit")
	}
	firstBrokerID := *entry.BrokerOrderID

	again, err := h.lifecycle.SubmitTrade(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("repeat submit trade: %v", err)
	}
	if again.Status != StatusSubmitted {
		t.Fatalf("status=%s, expected submitted", again.Status)
	}
	entryAfter, err := h.orders.Get(context.Background(), submitted.EntryOrderID)
	if err != nil {
		t.Fatalf("get entry after repeat: %v", err)
	}
	if entryAfter.BrokerOrderID == nil || *entryAfter.BrokerOrderID != firstBrokerID {
		t.Fatalf("expected broker order id to stay %s, got %+v", firstBrokerID, entryAfter.BrokerOrderID)
	}
}

func TestFillTradeRecordsOpenAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.submittedTrade(t)
	balBefore, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance before fill: %v", err)
	}

	filled, err := h.lifecycle.FillTrade(context.Background(), tr.ID, money.MustParse("100"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("fill trade: %v", err)
	}
	if filled.Status != StatusFilled {
		t.Fatalf("status=%s, expected filled", filled.Status)
	}
	balAfterFirst, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance after first fill: %v", err)
	}

	again, err := h.lifecycle.FillTrade(context.Background(), tr.ID, money.MustParse("100"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("repeat fill trade: %v", err)
	}
	if again.Status != StatusFilled {
		t.Fatalf("status=%s, expected filled", again.Status)
	}
	balAfterRepeat, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance after repeat fill: %v", err)
	}
	if balAfterRepeat.TotalAvailable.String() != balAfterFirst.TotalAvailable.String() {
		t.Fatalf("repeat FillTrade re-recorded ledger entries: available went from %s to %s (before fill: %s)",
			balAfterFirst.TotalAvailable.String(), balAfterRepeat.TotalAvailable.String(), balBefore.TotalAvailable.String())
	}
}

func TestTargetExecutedClosesTradeCancelsStopAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)

	closed, err := h.lifecycle.TargetExecuted(context.Background(), tr.ID, money.MustParse("120"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("target executed: %v", err)
	}
	if closed.Status != StatusClosedTarget {
		t.Fatalf("status=%s, expected closed_target", closed.Status)
	}
	stop, err := h.orders.Get(context.Background(), closed.SafetyStopOrderID)
	if err != nil {
		t.Fatalf("get stop: %v", err)
	}
	if stop.Status != orderbook.StatusCanceled {
		t.Fatalf("stop status=%s, expected canceled once target filled", stop.Status)
	}

	again, err := h.lifecycle.TargetExecuted(context.Background(), tr.ID, money.MustParse("120"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("repeat target executed: %v", err)
	}
	if again.Status != StatusClosedTarget {
		t.Fatalf("status=%s, expected closed_target on repeat call", again.Status)
	}
}

func TestStopExecutedUsesSlippageCategoryWhenWorseThanPlanned(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)

	// Long trade with planned stop at 90: a fill at 85 is worse (slippage).
	closed, err := h.lifecycle.StopExecuted(context.Background(), tr.ID, money.MustParse("85"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("stop executed: %v", err)
	}
	if closed.Status != StatusClosedStopLoss {
		t.Fatalf("status=%s, expected closed_stop_loss", closed.Status)
	}
	target, err := h.orders.Get(context.Background(), closed.TargetOrderID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if target.Status != orderbook.StatusCanceled {
		t.Fatalf("target status=%s, expected canceled once stop filled", target.Status)
	}

	again, err := h.lifecycle.StopExecuted(context.Background(), tr.ID, money.MustParse("85"), 10, money.MustParse("1"), time.Now().UTC())
	if err != nil {
		t.Fatalf("repeat stop executed: %v", err)
	}
	if again.Status != StatusClosedStopLoss {
		t.Fatalf("status=%s, expected closed_stop_loss on repeat call", again.Status)
	}
}

func TestCancelFundedReleasesFundsAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.fundedTrade(t)
	balFunded, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}

	canceled, err := h.lifecycle.CancelFunded(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("cancel funded: %v", err)
	}
	if canceled.Status != StatusCanceled {
		t.Fatalf("status=%s, expected canceled", canceled.Status)
	}
	balAfter, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance after cancel: %v", err)
	}
	if balAfter.TotalAvailable.String() != "100000" {
		t.Fatalf("available=%s, expected full 100000 released, funded balance was %s", balAfter.TotalAvailable.String(), balFunded.TotalAvailable.String())
	}

	again, err := h.lifecycle.CancelFunded(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("repeat cancel funded: %v", err)
	}
	if again.Status != StatusCanceled {
		t.Fatalf("status=%s, expected canceled on repeat call", again.Status)
	}
	balAfterRepeat, err := h.accounts.GetBalance(context.Background(), h.accountID, money.USD)
	if err != nil {
		t.Fatalf("get balance after repeat cancel: %v", err)
	}
	if balAfterRepeat.TotalAvailable.String() != "100000" {
		t.Fatalf("repeat CancelFunded moved funds again: available=%s", balAfterRepeat.TotalAvailable.String())
	}
}

func TestCancelSubmittedCancelsBrokerOrdersAndIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	tr := h.submittedTrade(t)

	canceled, err := h.lifecycle.CancelSubmitted(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("cancel submitted: %v", err)
	}
	if canceled.Status != StatusCanceled {
		t.Fatalf("status=%s, expected canceled", canceled.Status)
	}
	entry, err := h.orders.Get(context.Background(), canceled.EntryOrderID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != orderbook.StatusCanceled {
		t.Fatalf("entry status=%s, expected canceled", entry.Status)
	}

	again, err := h.lifecycle.CancelSubmitted(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("repeat cancel submitted: %v", err)
	}
	if again.Status != StatusCanceled {
		t.Fatalf("status=%s, expected canceled on repeat call", again.Status)
	}
}

func TestModifyStopTightensAndReplacesOrder(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)
	oldStopID := tr.SafetyStopOrderID

	modified, err := h.lifecycle.ModifyStop(context.Background(), tr.ID, money.MustParse("95"))
	if err != nil {
		t.Fatalf("modify stop: %v", err)
	}
	if modified.SafetyStopOrderID == oldStopID {
		t.Fatal("expected a new safety stop order id after ModifyStop")
	}
	oldStop, err := h.orders.Get(context.Background(), oldStopID)
	if err != nil {
		t.Fatalf("get old stop: %v", err)
	}
	if oldStop.Status != orderbook.StatusReplaced {
		t.Fatalf("old stop status=%s, expected replaced", oldStop.Status)
	}
	newStop, err := h.orders.Get(context.Background(), modified.SafetyStopOrderID)
	if err != nil {
		t.Fatalf("get new stop: %v", err)
	}
	if newStop.UnitPrice.String() != "95" {
		t.Fatalf("new stop price=%s, expected 95", newStop.UnitPrice.String())
	}
}

func TestModifyStopRejectsWideningRisk(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)

	if _, err := h.lifecycle.ModifyStop(context.Background(), tr.ID, money.MustParse("80")); err == nil {
		t.Fatal("expected ModifyStop to reject a stop that widens risk")
	}
}

func TestModifyTargetReplacesOrder(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)
	oldTargetID := tr.TargetOrderID

	modified, err := h.lifecycle.ModifyTarget(context.Background(), tr.ID, money.MustParse("130"))
	if err != nil {
		t.Fatalf("modify target: %v", err)
	}
	if modified.TargetOrderID == oldTargetID {
		t.Fatal("expected a new target order id after ModifyTarget")
	}
	oldTarget, err := h.orders.Get(context.Background(), oldTargetID)
	if err != nil {
		t.Fatalf("get old target: %v", err)
	}
	if oldTarget.Status != orderbook.StatusReplaced {
		t.Fatalf("old target status=%s, expected replaced", oldTarget.Status)
	}
	newTarget, err := h.orders.Get(context.Background(), modified.TargetOrderID)
	if err != nil {
		t.Fatalf("get new target: %v", err)
	}
	if newTarget.UnitPrice.String() != "130" {
		t.Fatalf("new target price=%s, expected 130", newTarget.UnitPrice.String())
	}
}

func TestCloseMarksTargetFilledAndCancelsStop(t *testing.T) {
	h := newTestHarness(t)
	tr := h.filledTrade(t)
	h.gateway.PushTick("AAPL", money.MustParse("110"), 10, time.Now().UTC())

	closed, err := h.lifecycle.Close(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusCanceled {
		t.Fatalf("status=%s, expected canceled (watcher/sync later advances to closed_target)", closed.Status)
	}
	target, err := h.orders.Get(context.Background(), closed.TargetOrderID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if target.Status != orderbook.StatusFilled {
		t.Fatalf("target status=%s, expected filled", target.Status)
	}
	stop, err := h.orders.Get(context.Background(), closed.SafetyStopOrderID)
	if err != nil {
		t.Fatalf("get stop: %v", err)
	}
	if stop.Status != orderbook.StatusCanceled {
		t.Fatalf("stop status=%s, expected canceled", stop.Status)
	}
}

func TestModifyStopAndTargetRequireFilledStatus(t *testing.T) {
	h := newTestHarness(t)
	tr := h.fundedTrade(t)

	if _, err := h.lifecycle.ModifyStop(context.Background(), tr.ID, money.MustParse("95")); !errors.Is(err, ErrNotModifiable) {
		t.Fatalf("ModifyStop on a Funded trade: got %v, expected ErrNotModifiable", err)
	}
	if _, err := h.lifecycle.ModifyTarget(context.Background(), tr.ID, money.MustParse("130")); !errors.Is(err, ErrNotModifiable) {
		t.Fatalf("ModifyTarget on a Funded trade: got %v, expected ErrNotModifiable", err)
	}
	if _, err := h.lifecycle.Close(context.Background(), tr.ID); !errors.Is(err, ErrNotModifiable) {
		t.Fatalf("Close on a Funded trade: got %v, expected ErrNotModifiable", err)
	}
}
