// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grimm.is/flywall/internal/compiler"
	"grimm.is/flywall/internal/profile"
)

func TestCounterBank_DirectionalBoundAppliesBasedOnDirection(t *testing.T) {
	fwdBound, bwdBound := 2, 5
	pol := &profile.Policy{Stats: profile.Stats{Count: &profile.DirectionalCount{Forward: &fwdBound, Backward: &bwdBound}}}
	cp := &compiler.CompiledPolicy{Policy: pol}
	bank := NewCounterBank()

	now := time.Now()
	assert.True(t, bank.Record("req", cp, now))
	assert.True(t, bank.Record("req", cp, now))
	assert.False(t, bank.Record("req", cp, now), "forward bound of 2 exceeded by the third packet")
}

func TestCounterBank_BackwardPolicySharesForwardCounterName(t *testing.T) {
	fwdBound := 1
	fwd := &profile.Policy{Stats: profile.Stats{Count: &profile.DirectionalCount{Forward: &fwdBound}}}
	bwd := &profile.Policy{Direction: profile.Backward, Stats: profile.Stats{Count: &profile.DirectionalCount{Forward: &fwdBound}}}
	cpFwd := &compiler.CompiledPolicy{Policy: fwd}
	cpBwd := &compiler.CompiledPolicy{Policy: bwd}
	bank := NewCounterBank()

	now := time.Now()
	assert.True(t, bank.Record("req", cpFwd, now))
	// backward direction has no explicit backward bound, so it is unbounded
	assert.True(t, bank.Record("req", cpBwd, now))
	assert.True(t, bank.Record("req", cpBwd, now))
}

func TestCounterBank_Reset_ClearsAllCounters(t *testing.T) {
	n := 1
	pol := &profile.Policy{Stats: profile.Stats{Count: &profile.DirectionalCount{Default: &n}}}
	cp := &compiler.CompiledPolicy{Policy: pol}
	bank := NewCounterBank()

	now := time.Now()
	assert.True(t, bank.Record("req", cp, now))
	assert.False(t, bank.Record("req", cp, now))

	bank.Reset()
	assert.True(t, bank.Record("req", cp, now), "after reset the counter should start fresh")
}

func TestSizeOK_NilBoundAlwaysPasses(t *testing.T) {
	assert.True(t, sizeOK(&compiler.Group{}, 99999))
}

func TestSizeOK_WithinBoundPasses(t *testing.T) {
	g := &compiler.Group{Size: &profile.SizeStat{Lower: 10, Upper: 100}}
	assert.True(t, sizeOK(g, 50))
	assert.False(t, sizeOK(g, 5))
	assert.False(t, sizeOK(g, 200))
}
