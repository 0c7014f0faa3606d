// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/flywall/internal/profile"
)

func TestMergeRate_SumsWhenBurstUnitMatches(t *testing.T) {
	existing := &profile.RateStat{PerSecond: 1, Burst: 1, BurstUnit: "packets"}
	incoming := &profile.RateStat{PerSecond: 2, Burst: 3, BurstUnit: "packets"}

	merged := mergeRate(existing, incoming)

	assert.Equal(t, 3.0, merged.PerSecond)
	assert.Equal(t, 4, merged.Burst)
	assert.Equal(t, "packets", merged.BurstUnit)
}

func TestMergeRate_KeepsExistingBurstOnUnitMismatch(t *testing.T) {
	existing := &profile.RateStat{PerSecond: 1, Burst: 1, BurstUnit: "packets"}
	incoming := &profile.RateStat{PerSecond: 2, Burst: 10, BurstUnit: "bytes"}

	merged := mergeRate(existing, incoming)

	assert.Equal(t, 3.0, merged.PerSecond)
	assert.Equal(t, 1, merged.Burst)
	assert.Equal(t, "packets", merged.BurstUnit)
}

func TestMergeRate_NilExistingReturnsIncoming(t *testing.T) {
	incoming := &profile.RateStat{PerSecond: 5}
	assert.Same(t, incoming, mergeRate(nil, incoming))
}

func TestMergeSize_UnionOfRanges(t *testing.T) {
	existing := &profile.SizeStat{Lower: 50, Upper: 100}
	incoming := &profile.SizeStat{Lower: 20, Upper: 200}

	merged := mergeSize(existing, incoming)

	assert.Equal(t, 20, merged.Lower)
	assert.Equal(t, 200, merged.Upper)
}

func TestMergeSize_NilIncomingReturnsExisting(t *testing.T) {
	existing := &profile.SizeStat{Lower: 1, Upper: 2}
	assert.Same(t, existing, mergeSize(existing, nil))
}
