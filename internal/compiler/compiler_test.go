// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/profile"
)

func arpPolicy(name string, rate *profile.RateStat) *profile.Policy {
	return &profile.Policy{
		Name: name,
		Protocols: map[string]profile.ProtocolClause{
			"arp": {"type": "request"},
		},
		Stats: profile.Stats{Rate: rate},
		Kind:  profile.Periodic,
	}
}

func TestCompile_PeriodicSinglePolicyAcceptsDirectlyInKernel(t *testing.T) {
	prof := &profile.Profile{
		Device:         profile.Device{Name: "phone", MAC: "aa:bb:cc:dd:ee:ff"},
		SinglePolicies: []*profile.Policy{arpPolicy("arp-heartbeat", &profile.RateStat{PerSecond: 1, Burst: 1, BurstUnit: "packets"})},
	}

	rs, err := Compile(prof, Options{Table: "flywall", QueueBase: 100})
	require.NoError(t, err)
	require.Len(t, rs.Groups, 1)

	g := rs.Groups[0]
	assert.Equal(t, -1, g.QueueNum, "pure periodic single policy with only stateless matches should accept directly in kernel")
	assert.Equal(t, "single#arp-heartbeat", g.Name)
	assert.Contains(t, rs.Script, "accept")
}

func TestCompile_InteractionQueuesEachDistinctMatchSet(t *testing.T) {
	dns := &profile.Policy{
		Name: "query",
		Protocols: map[string]profile.ProtocolClause{
			"dns": {"domain-name": "example.com"},
		},
		Kind: profile.OneOff,
	}
	https := &profile.Policy{
		Name: "connect",
		Protocols: map[string]profile.ProtocolClause{
			"tcp": {"dst-port": "443"},
		},
		Kind: profile.OneOff,
	}
	prof := &profile.Profile{
		Device: profile.Device{Name: "phone", MAC: "aa:bb:cc:dd:ee:ff"},
		Interactions: []*profile.Interaction{
			{Name: "dns-then-https", Policies: []*profile.Policy{dns, https}},
		},
	}
	for i, p := range prof.Interactions[0].Policies {
		p.Interaction = "dns-then-https"
		p.Index = i
	}

	rs, err := Compile(prof, Options{Table: "flywall", QueueBase: 200})
	require.NoError(t, err)
	require.Len(t, rs.Groups, 2, "each policy has a distinct stateless match set, so each gets its own queue")

	assert.Equal(t, 0, dns.SourceState)
	assert.Equal(t, 1, dns.TargetState)
	assert.Equal(t, 1, https.SourceState)
	assert.Equal(t, 2, https.TargetState)

	for _, g := range rs.Groups {
		assert.GreaterOrEqual(t, g.QueueNum, 200)
	}
}

func TestGroupName_SinglePolicyUsesSingleHashPrefix(t *testing.T) {
	cp := &CompiledPolicy{Policy: &profile.Policy{Name: "foo"}}
	assert.Equal(t, "single#foo", groupName(cp))
}

func TestGroupName_InteractionPolicyUsesInteractionName(t *testing.T) {
	cp := &CompiledPolicy{Policy: &profile.Policy{Name: "foo", Interaction: "bar"}}
	assert.Equal(t, "bar#foo", groupName(cp))
}

func TestAssignCounter_BackwardReferencesForwardsCounter(t *testing.T) {
	forward := &CompiledPolicy{Policy: &profile.Policy{
		Name: "req", Stats: profile.Stats{Count: &profile.DirectionalCount{Default: intPtr(5)}},
	}}
	backward := &CompiledPolicy{Policy: &profile.Policy{
		Name: "req-backward", Direction: profile.Backward,
		Stats: profile.Stats{Count: &profile.DirectionalCount{Default: intPtr(5)}},
	}}

	assignCounter(forward)
	assignCounter(backward)

	assert.Equal(t, "req", forward.CounterName)
	assert.False(t, forward.CounterIsBackward)
	assert.Equal(t, "req", backward.CounterName)
	assert.True(t, backward.CounterIsBackward)
}

func intPtr(n int) *int { return &n }
