package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTradeFilled, 1)
	defer unsub()

	b.Publish(EventTradeFilled, "trade-1")

	select {
	case got := <-ch:
		if got != "trade-1" {
			t.Fatalf("got %v, expected trade-1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTradeFilled, 1)
	defer unsub()

	b.Publish(EventTradeClosed, "trade-1")

	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery on unrelated topic: %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventWatchTick, 1)
	defer unsub()

	b.Publish(EventWatchTick, 1)
	b.Publish(EventWatchTick, 2)

	select {
	case got := <-ch:
		if got != 1 {
			t.Fatalf("got %v, expected the first published value to survive", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for buffered event")
	}

	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("expected the second publish to be dropped, got %v", got)
		}
	default:
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTradeCanceled, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}

	b.Publish(EventTradeCanceled, "ignored")
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe(EventRiskLevelChanged, 1)
	ch2, unsub2 := b.Subscribe(EventRiskLevelChanged, 1)
	defer unsub1()
	defer unsub2()

	b.Publish(EventRiskLevelChanged, "level-up")

	for _, ch := range []<-chan any{ch1, ch2} {
		select {
		case got := <-ch:
			if got != "level-up" {
				t.Fatalf("got %v, expected level-up", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}
