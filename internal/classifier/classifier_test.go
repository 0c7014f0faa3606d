// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/compiler"
	"grimm.is/flywall/internal/profile"
	"grimm.is/flywall/internal/protocols"
)

func singleQueueRuleset(cp *compiler.CompiledPolicy) *compiler.Ruleset {
	g := &compiler.Group{QueueNum: 200, Name: cp.GroupName, Policies: []*compiler.CompiledPolicy{cp}}
	return &compiler.Ruleset{Groups: []*compiler.Group{g}}
}

func TestEvaluate_MatchingPolicyAccepts(t *testing.T) {
	pol := &profile.Policy{Name: "query"}
	cp := &compiler.CompiledPolicy{
		Policy:    pol,
		GroupName: "single#query",
		Userspace: []protocols.UserspaceMatch{{Field: "dns.qtype", Op: "eq", Value: "A"}},
	}
	c := New(singleQueueRuleset(cp))

	pkt := &Packet{Length: 64, Fields: map[string]string{"dns.qtype": "A"}, Seen: time.Now()}
	v := c.Evaluate(200, pkt, "peer1")
	assert.True(t, v.Accept)
	assert.Equal(t, "single#query", v.Policy)
}

func TestEvaluate_NonMatchingUserspacePredicateDrops(t *testing.T) {
	pol := &profile.Policy{Name: "query"}
	cp := &compiler.CompiledPolicy{
		Policy:    pol,
		GroupName: "single#query",
		Userspace: []protocols.UserspaceMatch{{Field: "dns.qtype", Op: "eq", Value: "A"}},
	}
	c := New(singleQueueRuleset(cp))

	pkt := &Packet{Length: 64, Fields: map[string]string{"dns.qtype": "AAAA"}, Seen: time.Now()}
	v := c.Evaluate(200, pkt, "peer1")
	assert.False(t, v.Accept)
}

func TestEvaluate_UnknownQueueIsDropped(t *testing.T) {
	c := New(&compiler.Ruleset{})
	v := c.Evaluate(999, &Packet{}, "peer1")
	assert.False(t, v.Accept)
	assert.Equal(t, "unknown queue", v.Reason)
}

func TestEvaluate_OutOfBoundsSizeIsDropped(t *testing.T) {
	pol := &profile.Policy{Name: "query"}
	cp := &compiler.CompiledPolicy{Policy: pol, GroupName: "single#query"}
	g := &compiler.Group{QueueNum: 200, Policies: []*compiler.CompiledPolicy{cp}, Size: &profile.SizeStat{Lower: 0, Upper: 100}}
	c := New(&compiler.Ruleset{Groups: []*compiler.Group{g}})

	v := c.Evaluate(200, &Packet{Length: 500, Seen: time.Now()}, "peer1")
	assert.False(t, v.Accept)
	assert.Equal(t, "packet-size out of bounds", v.Reason)
}

func TestEvaluate_InteractionAdvancesStateOnMatch(t *testing.T) {
	pol := &profile.Policy{Name: "query", Interaction: "flow", SourceState: 0, TargetState: 1}
	cp := &compiler.CompiledPolicy{Policy: pol, GroupName: "flow#query"}
	c := New(singleQueueRuleset(cp))

	v := c.Evaluate(200, &Packet{Seen: time.Now()}, "peer1")
	require.True(t, v.Accept)

	st := c.states.Get("peer1", "flow", time.Now())
	assert.Equal(t, 1, st.State)
}

func TestEvaluate_WrongInteractionStateSkipsPolicy(t *testing.T) {
	pol := &profile.Policy{Name: "connect", Interaction: "flow", SourceState: 1, TargetState: 2}
	cp := &compiler.CompiledPolicy{Policy: pol, GroupName: "flow#connect"}
	c := New(singleQueueRuleset(cp))

	v := c.Evaluate(200, &Packet{Seen: time.Now()}, "peer1")
	assert.False(t, v.Accept, "policy requires state 1 but a fresh instance starts at state 0")
}

func TestEvaluate_CounterBoundExceededDrops(t *testing.T) {
	n := 1
	pol := &profile.Policy{Name: "query", Stats: profile.Stats{Count: &profile.DirectionalCount{Default: &n}}}
	cp := &compiler.CompiledPolicy{Policy: pol, GroupName: "single#query", CounterName: "query"}
	c := New(singleQueueRuleset(cp))

	first := c.Evaluate(200, &Packet{Seen: time.Now()}, "peer1")
	assert.True(t, first.Accept)

	second := c.Evaluate(200, &Packet{Seen: time.Now()}, "peer1")
	assert.False(t, second.Accept)
	assert.Equal(t, "counter bound exceeded", second.Reason)
}

func TestMatchOne_DomainNameMatchesViaDNSMap(t *testing.T) {
	c := New(&compiler.Ruleset{})
	c.RecordDNSAnswer("example.com", "93.184.216.34")
	ok := c.matchOne(protocols.UserspaceMatch{Field: "dns.domain-name", Op: "eq-or-dns", Value: "example.com"}, &Packet{DstIP: "93.184.216.34"}, nil)
	assert.True(t, ok)
}

func TestMatchOne_SuffixMatchesCachedSubdomain(t *testing.T) {
	c := New(&compiler.Ruleset{})
	c.RecordDNSAnswer("api.example.com", "93.184.216.34")
	ok := c.matchOne(protocols.UserspaceMatch{Field: "dns.domain-name", Op: "suffix", Value: "example.com"}, &Packet{DstIP: "93.184.216.34"}, nil)
	assert.True(t, ok)
}

func TestMatchOne_EqOrDNSMatchesCachedIPAfterDNSMapExpiry(t *testing.T) {
	c := New(&compiler.Ruleset{})
	st := &InteractionState{CachedIP: "203.0.113.9"}
	ok := c.matchOne(protocols.UserspaceMatch{Field: "dns.domain-name", Op: "eq-or-dns", Value: "example.com"}, &Packet{DstIP: "203.0.113.9"}, st)
	assert.True(t, ok)
}
