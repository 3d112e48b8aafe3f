package risk

import "sync/atomic"

// ProtectedMode is the process-wide flag: init -> armed/disarmed ->
// teardown, setter checks a keyword, getter is lock-free. Trading actions
// (fund/submit/modify/close) are never gated by it; only risk-profile
// mutations are.
type ProtectedMode struct {
	expectedKeyword string
	armed atomic.Bool
}

// NewProtectedMode builds a disarmed flag expecting the given keyword
// (TRUST_PROTECTED_KEYWORD_EXPECTED).
func NewProtectedMode(expectedKeyword string) *ProtectedMode {
	return &ProtectedMode{expectedKeyword: expectedKeyword}
}

// Enable arms protected mode if keyword matches the configured expectation.
func (p *ProtectedMode) Enable(keyword string) error {
	if p.expectedKeyword == "" || keyword != p.expectedKeyword {
		return ErrProtectedKeywordNeeded
	}
	p.armed.Store(true)
	return nil
}

// Disable disarms protected mode unconditionally (an operator's own
// terminal, already authenticated at the OS level, may always stand down).
func (p *ProtectedMode) Disable() { p.armed.Store(false) }

// Armed is a lock-free read of the current state.
func (p *ProtectedMode) Armed() bool { return p.armed.Load() }

// Require rejects the call with ErrProtectedKeywordNeeded when protected
// mode is on and no valid keyword was supplied. Call this at the top of
// every risk-profile mutation (rule create/deactivate, level change,
// distribution configure/execute), passing the confirmation value the
// caller supplied (may be empty).
func (p *ProtectedMode) Require(suppliedKeyword string) error {
	if !p.Armed() {
		return nil
	}
	if p.expectedKeyword == "" || suppliedKeyword != p.expectedKeyword {
		return ErrProtectedKeywordNeeded
	}
	return nil
}
