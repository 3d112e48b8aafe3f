package sync

import (
	"testing"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

func TestMatchVendorByBrokerOrderID(t *testing.T) {
	brokerID := "b-1"
	local := orderbook.Order{ID: "local-1", BrokerOrderID: &brokerID}
	vendors := []broker.VendorOrder{
		{BrokerOrderID: "b-1", Status: orderbook.StatusFilled},
		{BrokerOrderID: "b-2"},
	}
	v, found := matchVendor(vendors, local)
	if !found {
		t.Fatal("expected a match")
	}
	if v.Status != orderbook.StatusFilled {
		t.Fatalf("matched wrong vendor order: %+v", v)
	}
}

func TestMatchVendorFallsBackToClientOrderID(t *testing.T) {
	local := orderbook.Order{ID: "local-1"}
	vendors := []broker.VendorOrder{
		{ClientOrderID: "local-1", Status: orderbook.StatusAccepted},
	}
	v, found := matchVendor(vendors, local)
	if !found {
		t.Fatal("expected a match via client order id")
	}
	if v.Status != orderbook.StatusAccepted {
		t.Fatalf("matched wrong vendor order: %+v", v)
	}
}

func TestMatchVendorNoMatch(t *testing.T) {
	local := orderbook.Order{ID: "local-1"}
	_, found := matchVendor([]broker.VendorOrder{{ClientOrderID: "other"}}, local)
	if found {
		t.Fatal("expected no match")
	}
}

func TestApplyVendorReportsNoChangeWhenIdentical(t *testing.T) {
	brokerID := "b-1"
	o := orderbook.Order{BrokerOrderID: &brokerID, Status: orderbook.StatusFilled, FilledQuantity: 10}
	v := broker.VendorOrder{BrokerOrderID: "b-1", Status: orderbook.StatusFilled, FilledQuantity: 10}
	if applyVendor(&o, v) {
		t.Fatal("expected no change when vendor view matches local state")
	}
}

func TestApplyVendorDetectsStatusAndFillChange(t *testing.T) {
	o := orderbook.Order{Status: orderbook.StatusNew}
	v := broker.VendorOrder{BrokerOrderID: "b-1", Status: orderbook.StatusFilled, FilledQuantity: 50}
	if !applyVendor(&o, v) {
		t.Fatal("expected a change to be detected")
	}
	if o.Status != orderbook.StatusFilled || o.FilledQuantity != 50 {
		t.Fatalf("order not updated: %+v", o)
	}
	if o.BrokerOrderID == nil || *o.BrokerOrderID != "b-1" {
		t.Fatalf("expected BrokerOrderID to be adopted, got %+v", o.BrokerOrderID)
	}
}

func TestTimeEqual(t *testing.T) {
	now := time.Now()
	other := now
	if !timeEqual(&now, &other) {
		t.Fatal("expected equal times to compare equal")
	}
	if !timeEqual(nil, nil) {
		t.Fatal("expected nil, nil to compare equal")
	}
	if timeEqual(&now, nil) {
		t.Fatal("expected nil vs non-nil to compare unequal")
	}
	later := now.Add(time.Second)
	if timeEqual(&now, &later) {
		t.Fatal("expected different times to compare unequal")
	}
}

func TestValueOrZero(t *testing.T) {
	if got := valueOrZero(nil); !got.IsZero() {
		t.Fatalf("expected zero for nil pointer, got %s", got.String())
	}
	v := money.MustParse("42")
	if got := valueOrZero(&v); got.String() != "42" {
		t.Fatalf("got %s, expected 42", got.String())
	}
}

func TestTimeOrNow(t *testing.T) {
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := timeOrNow(&fixed); !got.Equal(fixed) {
		t.Fatalf("expected fixed time to pass through, got %v", got)
	}
	if got := timeOrNow(nil); got.IsZero() {
		t.Fatal("expected timeOrNow(nil) to return a non-zero time")
	}
}
