// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package compiler

import "grimm.is/flywall/internal/profile"

// mergeRate combines two policies' rate limits into the least
// restrictive match that still admits both: summed packets/second, with
// burst handled per spec's clarified open question — when burst units
// differ, the first (existing) policy's burst wins rather than being
// silently dropped (SPEC_FULL.md's recorded decision, grounded on
// NFQueue.py:update_rate_match).
func mergeRate(existing, incoming *profile.RateStat) *profile.RateStat {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	merged := &profile.RateStat{
		PerSecond: existing.PerSecond + incoming.PerSecond,
		Burst:     existing.Burst,
		BurstUnit: existing.BurstUnit,
	}
	if existing.BurstUnit == incoming.BurstUnit {
		merged.Burst = existing.Burst + incoming.Burst
	}
	return merged
}

// mergeSize unions two packet-size ranges (min of lowers, max of uppers),
// matching NFQueue.py:update_size_match.
func mergeSize(existing, incoming *profile.SizeStat) *profile.SizeStat {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	lower := existing.Lower
	if incoming.Lower < lower {
		lower = incoming.Lower
	}
	upper := existing.Upper
	if incoming.Upper > upper {
		upper = incoming.Upper
	}
	return &profile.SizeStat{Lower: lower, Upper: upper}
}
