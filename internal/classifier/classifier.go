// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"strconv"
	"strings"
	"time"

	"grimm.is/flywall/internal/compiler"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/protocols"
)

// Verdict is the classifier's final decision for one queued packet.
type Verdict struct {
	Accept bool
	Policy string // name of the matched policy, "" if none matched
	Reason string
}

// Classifier evaluates queued packets against one device's compiled
// ruleset, maintaining the live DNS map, per-interaction state, and
// per-group rate limiters that make up spec.md §4.4's runtime model.
type Classifier struct {
	groupByQueue map[int]*compiler.Group
	limiters     map[int]*RateLimiter
	dns          *DNSMap
	states       *StateTable
	log          *logging.Logger
}

// New builds a Classifier from a compiled Ruleset.
func New(rs *compiler.Ruleset) *Classifier {
	c := &Classifier{
		groupByQueue: make(map[int]*compiler.Group),
		limiters:     make(map[int]*RateLimiter),
		dns:          NewDNSMap(),
		states:       NewStateTable(),
		log:          logging.WithComponent("classifier"),
	}
	for _, g := range rs.Groups {
		if g.QueueNum < 0 {
			continue
		}
		c.groupByQueue[g.QueueNum] = g
		c.limiters[g.QueueNum] = newRateLimiter(g)
	}
	return c
}

// RecordDNSAnswer feeds an observed DNS/mDNS answer into the live map so
// later domain-name-or-cached-IP predicates can match against it.
func (c *Classifier) RecordDNSAnswer(domain, addr string) {
	c.dns.Record(domain, addr)
}

// Evaluate decides the verdict for a packet delivered on queueNum,
// advancing the owning interaction's state machine on a match.
func (c *Classifier) Evaluate(queueNum int, pkt *Packet, instanceKey string) Verdict {
	g, ok := c.groupByQueue[queueNum]
	if !ok {
		return Verdict{Accept: false, Reason: "unknown queue"}
	}

	now := pkt.Seen
	if now.IsZero() {
		now = time.Now()
	}

	if !sizeOK(g, pkt.Length) {
		return Verdict{Accept: false, Reason: "packet-size out of bounds"}
	}
	if lim := c.limiters[queueNum]; lim != nil && !lim.Allow() {
		return Verdict{Accept: false, Reason: "rate limit exceeded"}
	}

	for _, cp := range g.Policies {
		var st *InteractionState
		if cp.Policy.Interaction != "" {
			st = c.states.Get(instanceKey, cp.Policy.Interaction, now)
		}

		if !c.matchesUserspace(cp.Userspace, pkt, st) {
			continue
		}

		if st != nil && st.State != cp.Policy.SourceState {
			continue
		}

		if cp.CounterName != "" {
			counters := c.states.Get(instanceKey, cp.Policy.Interaction, now).Counters
			if !counters.Record(cp.CounterName, cp, now) {
				return Verdict{Accept: false, Policy: cp.GroupName, Reason: "counter bound exceeded"}
			}
		}

		if st != nil {
			if domainMatched(cp.Userspace) {
				st.CachedIP = pkt.DstIP
			}
			st.Advance(cp.Policy.TargetState, now)
			if cp.Policy.Timeout > 0 {
				st.Timeout = cp.Policy.Timeout
			}
		}
		return Verdict{Accept: true, Policy: cp.GroupName, Reason: "matched"}
	}

	return Verdict{Accept: false, Reason: "no policy matched"}
}

// domainMatched reports whether predicates includes a domain-name match,
// the case spec.md §4.2 requires caching the resolved destination IP for so
// later packets in the same interaction instance can match on cached_ip
// even after the DNS map's own entry has expired.
func domainMatched(predicates []protocols.UserspaceMatch) bool {
	for _, pred := range predicates {
		if pred.Op == "eq-or-dns" || pred.Op == "suffix" {
			return true
		}
	}
	return false
}

// matchesUserspace checks every predicate a policy still needs evaluated
// after its stateless nftables matches already passed. st is the policy's
// interaction instance state, nil for non-interaction policies; it carries
// the cached_ip a prior domain-name match recorded.
func (c *Classifier) matchesUserspace(predicates []protocols.UserspaceMatch, pkt *Packet, st *InteractionState) bool {
	for _, pred := range predicates {
		if !c.matchOne(pred, pkt, st) {
			return false
		}
	}
	return true
}

func (c *Classifier) matchOne(pred protocols.UserspaceMatch, pkt *Packet, st *InteractionState) bool {
	switch pred.Op {
	case "eq-or-dns":
		addr, _ := pkt.field(strings.SplitN(pred.Field, ".", 2)[0] + ".resolved-addr")
		if addr == "" {
			addr = pkt.DstIP
		}
		if st != nil && st.CachedIP != "" && addr == st.CachedIP {
			return true
		}
		return c.dns.Contains(pred.Value, addr) || addr == pred.Value
	case "suffix":
		addr, _ := pkt.field(strings.SplitN(pred.Field, ".", 2)[0] + ".resolved-addr")
		if addr == "" {
			addr = pkt.DstIP
		}
		if st != nil && st.CachedIP != "" && addr == st.CachedIP {
			return true
		}
		return c.dns.ContainsSuffix(pred.Value, addr)
	case "prefix":
		v, ok := pkt.field(pred.Field)
		return ok && strings.HasPrefix(v, pred.Value)
	default: // "eq"
		v, ok := pkt.field(pred.Field)
		if !ok {
			return false
		}
		if v == pred.Value {
			return true
		}
		// numeric fields may arrive as either decimal strings or symbolic names
		if n1, err1 := strconv.Atoi(v); err1 == nil {
			if n2, err2 := strconv.Atoi(pred.Value); err2 == nil {
				return n1 == n2
			}
		}
		return false
	}
}
