// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"grimm.is/flywall/internal/compiler"
)

// RateLimiter wraps a token bucket per group, normalized to the group's
// aggregated packets/second rate (compiler.mergeRate already folded
// multiple policies' rates together at compile time).
type RateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(g *compiler.Group) *RateLimiter {
	if g.Rate == nil || g.Rate.PerSecond <= 0 {
		return nil
	}
	burst := g.Rate.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(g.Rate.PerSecond), burst)}
}

// Allow reports whether one packet is admitted by the token bucket.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// sizeOK reports whether length falls within the group's packet-size
// bound, if any.
func sizeOK(g *compiler.Group, length int) bool {
	if g.Size == nil {
		return true
	}
	return length >= g.Size.Lower && length <= g.Size.Upper
}

// CounterKind distinguishes the two counter-backed statistics.
type CounterKind int

const (
	CounterCount CounterKind = iota
	CounterDuration
)

// counterState tracks one named counter's running value and the bound
// it must not exceed, split by direction per Policy.py's
// is_base_for_counter/is_backward_for_counter attribution.
type counterState struct {
	kind CounterKind

	forwardBound, backwardBound, defaultBound *int
	forwardDurBound, backwardDurBound, defaultDurBound *time.Duration

	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// CounterBank tracks every named counter for one interaction's live
// runtime instance.
type CounterBank struct {
	mu       sync.Mutex
	counters map[string]*counterState
}

func NewCounterBank() *CounterBank {
	return &CounterBank{counters: make(map[string]*counterState)}
}

// Record increments the named counter for a packet arriving at time now
// and reports whether the policy's bound is still satisfied (true =
// within limit, packet may be accepted).
func (b *CounterBank) Record(name string, cp *compiler.CompiledPolicy, now time.Time) bool {
	if name == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.counters[name]
	if !ok {
		st = &counterState{firstSeen: now}
		if c := cp.Policy.Stats.Count; c != nil {
			st.kind = CounterCount
			st.forwardBound, st.backwardBound, st.defaultBound = c.Forward, c.Backward, c.Default
		}
		if d := cp.Policy.Stats.Duration; d != nil {
			st.kind = CounterDuration
			st.forwardDurBound, st.backwardDurBound, st.defaultDurBound = d.Forward, d.Backward, d.Default
		}
		b.counters[name] = st
	}
	st.count++
	st.lastSeen = now

	switch st.kind {
	case CounterCount:
		bound := st.defaultBound
		if cp.Policy.IsBackward() && st.backwardBound != nil {
			bound = st.backwardBound
		} else if !cp.Policy.IsBackward() && st.forwardBound != nil {
			bound = st.forwardBound
		}
		if bound == nil {
			return true
		}
		return st.count <= *bound
	case CounterDuration:
		bound := st.defaultDurBound
		if cp.Policy.IsBackward() && st.backwardDurBound != nil {
			bound = st.backwardDurBound
		} else if !cp.Policy.IsBackward() && st.forwardDurBound != nil {
			bound = st.forwardDurBound
		}
		if bound == nil {
			return true
		}
		return now.Sub(st.firstSeen) <= *bound
	}
	return true
}

// Reset discards an interaction instance's counters, e.g. on state-machine
// reset or timeout expiry.
func (b *CounterBank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = make(map[string]*counterState)
}
