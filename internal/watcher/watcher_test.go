package watcher

import (
	"testing"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

func TestStreamFSMBackoffDoublesAndCaps(t *testing.T) {
	f := &streamFSM{}
	base := time.Second
	cap := 10 * time.Second

	if got := f.backoff(base, cap); got != time.Second {
		t.Fatalf("attempt 0 backoff=%v, expected 1s", got)
	}
	f.attempt = 2
	if got := f.backoff(base, cap); got != 4*time.Second {
		t.Fatalf("attempt 2 backoff=%v, expected 4s", got)
	}
	f.attempt = 10
	if got := f.backoff(base, cap); got != cap {
		t.Fatalf("attempt 10 backoff=%v, expected capped at %v", got, cap)
	}
}

func TestStreamFSMRecordErrorAndConnected(t *testing.T) {
	f := &streamFSM{state: stateLive, attempt: 2}
	f.recordError()
	if f.state != stateErrorRecover {
		t.Fatalf("state=%s, expected error_recovery", f.state)
	}
	if f.attempt != 3 {
		t.Fatalf("attempt=%d, expected 3", f.attempt)
	}

	f.recordConnected(stateLive)
	if f.state != stateLive || f.attempt != 0 {
		t.Fatalf("expected reset to live/0, got state=%s attempt=%d", f.state, f.attempt)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.ReconcileEvery != 30*time.Second {
		t.Fatalf("ReconcileEvery=%v, expected 30s", got.ReconcileEvery)
	}
	if got.BaseBackoff != time.Second {
		t.Fatalf("BaseBackoff=%v, expected 1s", got.BaseBackoff)
	}
	if got.MaxBackoff != 30*time.Second {
		t.Fatalf("MaxBackoff=%v, expected 30s", got.MaxBackoff)
	}

	custom := Options{ReconcileEvery: 5 * time.Second, BaseBackoff: 2 * time.Second, MaxBackoff: 60 * time.Second}.withDefaults()
	if custom.ReconcileEvery != 5*time.Second || custom.BaseBackoff != 2*time.Second || custom.MaxBackoff != 60*time.Second {
		t.Fatalf("withDefaults overwrote explicit values: %+v", custom)
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name                 string
		entry, target, stop orderbook.Status
		want                 bool
	}{
		{"target filled", orderbook.StatusNew, orderbook.StatusFilled, orderbook.StatusNew, true},
		{"stop filled", orderbook.StatusNew, orderbook.StatusNew, orderbook.StatusFilled, true},
		{"entry canceled", orderbook.StatusCanceled, orderbook.StatusNew, orderbook.StatusNew, true},
		{"entry rejected", orderbook.StatusRejected, orderbook.StatusNew, orderbook.StatusNew, true},
		{"all open", orderbook.StatusNew, orderbook.StatusNew, orderbook.StatusNew, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := orderbook.Order{Status: tt.entry}
			target := orderbook.Order{Status: tt.target}
			stop := orderbook.Order{Status: tt.stop}
			if got := isTerminal(entry, target, stop); got != tt.want {
				t.Fatalf("isTerminal()=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestChangedAny(t *testing.T) {
	before := [3]orderbook.Order{{Status: orderbook.StatusNew}, {Status: orderbook.StatusNew}, {Status: orderbook.StatusNew}}
	same := before
	if changedAny(before, same) {
		t.Fatal("expected no change when nothing differs")
	}

	changed := before
	changed[1].Status = orderbook.StatusFilled
	if !changedAny(before, changed) {
		t.Fatal("expected a status change to be detected")
	}

	changedQty := before
	changedQty[2].FilledQuantity = 10
	if !changedAny(before, changedQty) {
		t.Fatal("expected a filled-quantity change to be detected")
	}
}

func TestApplyOrderUpdateMatchesByBrokerOrderID(t *testing.T) {
	brokerID := "broker-123"
	entry := orderbook.Order{ID: "local-entry", BrokerOrderID: &brokerID}
	target := orderbook.Order{ID: "local-target"}
	stop := orderbook.Order{ID: "local-stop"}

	upd := broker.OrderUpdate{
		BrokerOrderID:  "broker-123",
		Status:         orderbook.StatusFilled,
		FilledQuantity: 100,
		At:             time.Now(),
	}
	applyOrderUpdate(&entry, &target, &stop, upd)

	if entry.Status != orderbook.StatusFilled || entry.FilledQuantity != 100 {
		t.Fatalf("entry not updated: %+v", entry)
	}
	if entry.FilledAt == nil {
		t.Fatal("expected FilledAt to be stamped once status is filled")
	}
	if target.Status == orderbook.StatusFilled {
		t.Fatal("target should not have matched")
	}
}

func TestApplyOrderUpdateMatchesByClientOrderID(t *testing.T) {
	entry := orderbook.Order{ID: "local-entry"}
	target := orderbook.Order{ID: "local-target"}
	stop := orderbook.Order{ID: "local-stop"}

	upd := broker.OrderUpdate{
		ClientOrderID: "local-stop",
		BrokerOrderID: "broker-999",
		Status:        orderbook.StatusPartiallyFilled,
		FilledQuantity: 5,
	}
	applyOrderUpdate(&entry, &target, &stop, upd)

	if stop.BrokerOrderID == nil || *stop.BrokerOrderID != "broker-999" {
		t.Fatalf("expected stop to adopt the broker order id, got %+v", stop)
	}
	if stop.Status != orderbook.StatusPartiallyFilled || stop.FilledQuantity != 5 {
		t.Fatalf("stop not updated: %+v", stop)
	}
}
