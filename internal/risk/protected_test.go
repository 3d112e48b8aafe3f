package risk

import (
	"errors"
	"testing"
)

func TestProtectedModeDisarmedAllowsAnything(t *testing.T) {
	p := NewProtectedMode("keyword")
	if p.Armed() {
		t.Fatal("expected a new ProtectedMode to start disarmed")
	}
	if err := p.Require(""); err != nil {
		t.Fatalf("disarmed Require should never block, got %v", err)
	}
}

func TestProtectedModeEnableRequiresMatchingKeyword(t *testing.T) {
	p := NewProtectedMode("keyword")
	if err := p.Enable("wrong"); !errors.Is(err, ErrProtectedKeywordNeeded) {
		t.Fatalf("expected ErrProtectedKeywordNeeded, got %v", err)
	}
	if p.Armed() {
		t.Fatal("a failed Enable must not arm the flag")
	}
	if err := p.Enable("keyword"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !p.Armed() {
		t.Fatal("expected Armed() to be true after a matching Enable")
	}
}

func TestProtectedModeArmedBlocksWithoutKeyword(t *testing.T) {
	p := NewProtectedMode("keyword")
	if err := p.Enable("keyword"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := p.Require(""); !errors.Is(err, ErrProtectedKeywordNeeded) {
		t.Fatalf("expected ErrProtectedKeywordNeeded, got %v", err)
	}
	if err := p.Require("keyword"); err != nil {
		t.Fatalf("expected a matching keyword to pass, got %v", err)
	}
}

func TestProtectedModeDisableIsUnconditional(t *testing.T) {
	p := NewProtectedMode("keyword")
	if err := p.Enable("keyword"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	p.Disable()
	if p.Armed() {
		t.Fatal("expected Disable to clear the armed flag")
	}
	if err := p.Require(""); err != nil {
		t.Fatalf("disarmed Require should never block, got %v", err)
	}
}
