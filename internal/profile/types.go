// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package profile is the in-memory representation of a device's
// behavioral profile: single policies, interactions, and the device
// identity they're written against.
package profile

import "time"

// Direction distinguishes a policy from its bidirectional twin.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Kind is a policy's temporal classification, driven entirely by which
// statistics it declares.
type Kind int

const (
	OneOff Kind = iota
	Transient
	Periodic
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Periodic:
		return "periodic"
	default:
		return "one-off"
	}
}

// Device is the profiled host: the "self" token anywhere an address
// appears resolves to one of these fields.
type Device struct {
	Name string
	MAC  string
	IPv4 string
	IPv6 string
}

// RateStat is a token-bucket admission rate, e.g. "1/second burst 1 packets".
type RateStat struct {
	PerSecond float64 // normalized rate in packets/second
	Burst     int
	BurstUnit string // "packets" or "bytes"; carried through unchanged for aggregation
}

// SizeStat bounds the packet's wire length in bytes.
type SizeStat struct {
	Lower int
	Upper int
}

// DirectionalCount is a packet-count bound that may be declared forward,
// backward, or as a single default shared by both directions.
type DirectionalCount struct {
	Forward *int
	Backward *int
	Default *int
}

// DirectionalDuration mirrors DirectionalCount for wall-clock durations.
type DirectionalDuration struct {
	Forward *time.Duration
	Backward *time.Duration
	Default *time.Duration
}

// Stats holds at most one of each kind of statistic, per spec invariants.
type Stats struct {
	Rate     *RateStat
	Size     *SizeStat
	Count    *DirectionalCount
	Duration *DirectionalDuration
}

// ProtocolClause is a single protocol's recognized fields on a policy, as
// parsed from YAML after include/self resolution. Field names are the
// canonical lower-kebab names from spec.md §6 (e.g. "domain-name",
// "dst-port"); values are whatever YAML decoding yields for the field: a
// string, a []any list, a bool, or a number.
type ProtocolClause map[string]any

// Policy is one flattened single policy: either a genuine single-policies
// entry, or one step of a flattened interaction.
type Policy struct {
	Name        string // leaf name within its interaction, or top-level name
	Interaction string // "" for a true single policy

	Direction     Direction
	Bidirectional bool
	Kind          Kind
	Initiator     string // "src", "dst", or ""

	Protocols map[string]ProtocolClause

	Stats Stats

	Timeout        time.Duration
	ActivityPeriod string

	// Index is this policy's position in its interaction's flattened
	// sequence (0 for single policies).
	Index int

	// SourceState/TargetState are filled in by the compiler once the
	// interaction's full sequence is known (spec.md §4.3).
	SourceState int
	TargetState int
}

// IsBackward reports whether this is the synthetic "-backward" twin.
func (p *Policy) IsBackward() bool { return p.Direction == Backward }

// Interaction is an ordered, fully-flattened sequence of policies.
type Interaction struct {
	Name     string
	Policies []*Policy
}

// Profile is a fully-loaded, include-expanded device profile.
type Profile struct {
	Device         Device
	SinglePolicies []*Policy
	Interactions   []*Interaction
}

// AllPolicies returns every policy in the profile, single policies first,
// then each interaction's flattened sequence in order.
func (p *Profile) AllPolicies() []*Policy {
	out := make([]*Policy, 0, len(p.SinglePolicies))
	out = append(out, p.SinglePolicies...)
	for _, it := range p.Interactions {
		out = append(out, it.Policies...)
	}
	return out
}
