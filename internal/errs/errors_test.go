package errs

import (
	"errors"
	"testing"
)

func TestErrorMessageFormatting(t *testing.T) {
	withMessage := New(KindState, "TradeNotModifiable", "trade must be Filled")
	if got, want := withMessage.Error(), "state: TradeNotModifiable: trade must be Filled"; got != want {
		t.Fatalf("Error()=%q, expected %q", got, want)
	}

	noMessage := New(KindValidation, "InvalidQuantity", "")
	if got, want := noMessage.Error(), "validation: InvalidQuantity"; got != want {
		t.Fatalf("Error()=%q, expected %q", got, want)
	}
}

func TestWrapCapturesCauseMessage(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(KindBroker, "SubmitTradeFailed", cause)
	if wrapped.Message != "connection reset" {
		t.Fatalf("Message=%q, expected the cause's message", wrapped.Message)
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("expected an Error to match itself via errors.Is")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Fatal("expected Unwrap to expose the wrapped cause")
	}
}

func TestErrorIsMatchesOnKindAndCodeOnly(t *testing.T) {
	a := New(KindState, "InvalidTransition", "New->Filled")
	b := New(KindState, "InvalidTransition", "Funded->Closed")
	if !errors.Is(a, b) {
		t.Fatal("expected errors with the same kind+code to match regardless of message")
	}

	c := New(KindState, "TradeNotModifiable", "")
	if errors.Is(a, c) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestIsTransient(t *testing.T) {
	transient := NewBrokerError(Transient, "RateLimited", nil)
	fatal := NewBrokerError(Fatal, "Unauthorized", nil)
	plain := errors.New("boring error")

	if !IsTransient(transient) {
		t.Fatal("expected a Transient BrokerError to report transient")
	}
	if IsTransient(fatal) {
		t.Fatal("expected a Fatal BrokerError not to report transient")
	}
	if IsTransient(plain) {
		t.Fatal("expected a non-BrokerError not to report transient")
	}
}

func TestBrokerErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	be := NewBrokerError(Transient, "Timeout", cause)
	if errors.Unwrap(be) != cause {
		t.Fatal("expected Unwrap to expose the wrapped cause")
	}
}
