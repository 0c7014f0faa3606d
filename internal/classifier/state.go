// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"sync"
	"time"
)

// InteractionState is one live instance of an interaction's state
// machine: which step it's waiting on next, the cached IP its domain-name
// policies resolved to, and its own counter bank (spec.md §3's
// "Interaction runtime state").
type InteractionState struct {
	Interaction string
	State       int
	CachedIP    string
	Counters    *CounterBank
	LastSeen    time.Time
	Timeout     time.Duration
}

// Advance moves the state machine from SourceState to TargetState,
// refreshing LastSeen.
func (s *InteractionState) Advance(target int, now time.Time) {
	s.State = target
	s.LastSeen = now
}

// Expired reports whether this instance's timeout has elapsed.
func (s *InteractionState) Expired(now time.Time) bool {
	if s.Timeout <= 0 {
		return false
	}
	return now.Sub(s.LastSeen) > s.Timeout
}

// StateTable holds one InteractionState per live (interaction, instance
// key) pair. The instance key is caller-defined — typically the other
// host's address, since the same interaction can run concurrently
// against multiple peers.
type StateTable struct {
	mu    sync.Mutex
	rows  map[string]*InteractionState
}

func NewStateTable() *StateTable {
	return &StateTable{rows: make(map[string]*InteractionState)}
}

// Get returns the state for key, creating a fresh at-step-0 instance if
// none exists yet.
func (t *StateTable) Get(key, interaction string, now time.Time) *InteractionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	rowKey := interaction + "\x00" + key
	st, ok := t.rows[rowKey]
	if !ok || st.Expired(now) {
		st = &InteractionState{Interaction: interaction, State: 0, Counters: NewCounterBank(), LastSeen: now}
		t.rows[rowKey] = st
	}
	return st
}

// Reset reverts the (interaction, key) instance to step 0 and clears its
// cached IP and counters — the cached IP lives for the interaction runtime
// instance's lifetime and is cleared on reset or timeout expiry, not on
// completion.
func (t *StateTable) Reset(key, interaction string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.rows[interaction+"\x00"+key]; ok {
		st.State = 0
		st.CachedIP = ""
		st.Counters.Reset()
		st.LastSeen = now
	}
}

// Sweep removes expired instances.
func (t *StateTable) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, st := range t.rows {
		if st.Expired(now) {
			delete(t.rows, k)
		}
	}
}
