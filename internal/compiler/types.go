// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package compiler turns a loaded profile.Profile into the kernel
// ruleset (nftables rules + named counters) and the classifier
// configuration (NFQueue groups, per-policy counter and state wiring)
// spec.md §4.3 describes, replacing the reference translator's
// inheritance-based Policy/NFQueue object graph with plain data.
package compiler

import (
	"grimm.is/flywall/internal/profile"
	"grimm.is/flywall/internal/protocols"
)

// CompiledPolicy is one policy after protocol/stat parsing: its
// stateless nftables matches, any userspace predicates the classifier
// must still check, and its place in the interaction state machine.
type CompiledPolicy struct {
	Policy *profile.Policy

	NFTMatches []string
	Userspace  []protocols.UserspaceMatch

	// QueueNum is this policy's nfqueue number, or -1 for a kernel-only
	// accept (no userspace verdict needed).
	QueueNum int

	// CounterName is non-empty when this policy has a packet-count or
	// duration counter: the forward policy owns it (spec.md's
	// is_base_for_counter), and a backward twin carries the same name with
	// CounterIsBackward set.
	CounterName      string
	CounterIsBackward bool

	GroupName string // this policy's own "<interaction>#<policy>" name, used in verdicts and logs
}

// Group is a set of policies sharing one nfqueue number because they
// have identical stateless match sets (spec.md §4.3's NFQueue grouping
// by stateless-match-set equality).
type Group struct {
	QueueNum   int
	Name       string
	NFTMatches []string
	Rate       *profile.RateStat
	Size       *profile.SizeStat
	Policies   []*CompiledPolicy
}

// Ruleset is the compiler's full output for one device profile.
type Ruleset struct {
	Device  profile.Device
	Script  string // generated nftables script text
	Groups  []*Group
	Flat    []*CompiledPolicy // every policy, in compiled order (queued and accept alike)
}
