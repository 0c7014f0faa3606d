// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package compiler

import (
	"fmt"
	"sort"
	"strings"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/firewall"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/profile"
	"grimm.is/flywall/internal/protocols"
)

// queueStep is the nfqueue number increment reserved per interaction
// (spec.md §4.3): a profile with N interactions, each needing queues,
// spaces their base numbers 10 apart so a device's queue range stays
// predictable regardless of how many distinct match-sets a single
// interaction happens to produce.
const queueStep = 10

// Options configures one compilation pass.
type Options struct {
	Table    string
	QueueBase int
	LogType  string // "none", "csv", "pcap"
	LogGroup int
}

// Compile parses every policy's protocol clauses, groups the ones that
// need a userspace verdict into NFQueue-equivalent groups by stateless
// match-set equality, assigns queue numbers, and renders the nftables
// script.
func Compile(prof *profile.Profile, opts Options) (*Ruleset, error) {
	rs := &Ruleset{Device: prof.Device}

	sb := firewall.NewScriptBuilder(opts.Table, "inet", "UTC")
	// Rule-consolidation optimization collapses rules that differ only in
	// literal match values into one synthesized set-based rule, which loses
	// each group's distinct queue number and log prefix. This compiler
	// relies on exactly one rule per group (spec.md §6), so optimization
	// must stay off.
	sb.SetOptimizationEnabled(false)
	sb.AddTableWithComment(fmt.Sprintf("device %s (%s)", prof.Device.Name, prof.Device.MAC))
	sb.AddChain("input", "filter", "input", 0, "accept")

	// Each single policy is its own one-step "interaction" for queue
	// base-numbering purposes; a real interaction's policies share its
	// sequence's base number, subdivided further into match-set groups.
	base := opts.QueueBase
	for _, pol := range prof.SinglePolicies {
		grp, err := compileSequence(prof.Device, []*profile.Policy{pol}, base)
		if err != nil {
			return nil, err
		}
		rs.Groups = append(rs.Groups, grp...)
		base += queueStep
	}
	for _, it := range prof.Interactions {
		grp, err := compileSequence(prof.Device, it.Policies, base)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindParse, "compiler: interaction %q", it.Name)
		}
		rs.Groups = append(rs.Groups, grp...)
		base += queueStep
	}

	for _, g := range rs.Groups {
		rs.Flat = append(rs.Flat, g.Policies...)
		for _, cp := range g.Policies {
			if cp.CounterName != "" {
				sb.AddCounter(cp.CounterName, "packet-count/duration counter for "+cp.CounterName)
			}
		}
		sb.AddRule("input", renderGroupRule(g, opts), g.Name)
	}

	rs.Script = sb.Build()
	return rs, nil
}

// compileSequence parses each policy in a flattened step sequence,
// assigns state numbers, and groups the queue-needing ones by identical
// stateless match sets, starting queue numbers at base.
func compileSequence(dev profile.Device, policies []*profile.Policy, base int) ([]*Group, error) {
	compiled := make([]*CompiledPolicy, 0, len(policies))
	for i, pol := range policies {
		pol.SourceState = i
		pol.TargetState = i + 1

		res, err := protocols.ParseClause(pol.Protocols, pol.IsBackward(), pol.Initiator)
		if err != nil {
			return nil, err
		}
		if len(pol.Protocols) > 0 && len(res.NFTMatches) == 0 && len(res.Userspace) == 0 {
			logging.WithComponent("compiler").Warn("policy has no parseable protocol clauses, falling back to accept-all for its direction", "policy", pol.Name)
		}
		cp := &CompiledPolicy{Policy: pol, NFTMatches: res.NFTMatches, Userspace: res.Userspace}
		cp.GroupName = groupName(cp)
		assignCounter(cp)
		compiled = append(compiled, cp)
	}

	var groups []*Group
	byKey := map[string]*Group{}
	nextQueue := base
	for _, cp := range compiled {
		if !needsQueue(cp, len(policies) > 1) {
			cp.QueueNum = -1
			groups = append(groups, &Group{
				QueueNum: -1, Name: groupName(cp), NFTMatches: cp.NFTMatches,
				Rate: cp.Policy.Stats.Rate, Size: cp.Policy.Stats.Size,
				Policies: []*CompiledPolicy{cp},
			})
			continue
		}
		key := matchSetKey(cp.NFTMatches)
		g, ok := byKey[key]
		if !ok {
			g = &Group{QueueNum: nextQueue, Name: groupName(cp), NFTMatches: cp.NFTMatches}
			nextQueue++
			byKey[key] = g
			groups = append(groups, g)
		}
		cp.QueueNum = g.QueueNum
		g.Rate = mergeRate(g.Rate, cp.Policy.Stats.Rate)
		g.Size = mergeSize(g.Size, cp.Policy.Stats.Size)
		g.Policies = append(g.Policies, cp)
	}
	return groups, nil
}

// needsQueue reports whether a policy's verdict can only be decided in
// userspace: it is one step of a multi-policy interaction (multiStep),
// whose ordering against the other steps is interaction state, it has a
// protocol predicate the kernel can't express (a domain name, an
// application-layer field), or a packet-count/duration limit, none of
// which has a stateless nftables equivalent.
func needsQueue(cp *CompiledPolicy, multiStep bool) bool {
	if multiStep || len(cp.Userspace) > 0 {
		return true
	}
	s := cp.Policy.Stats
	return s.Count != nil || s.Duration != nil
}

// assignCounter implements Policy.py's is_base_for_counter /
// is_backward_for_counter: the forward policy (or the lone default
// direction) owns the counter; the backward twin references it rather
// than allocating its own.
func assignCounter(cp *CompiledPolicy) {
	s := cp.Policy.Stats
	hasCounterStat := s.Count != nil || s.Duration != nil
	if !hasCounterStat {
		return
	}
	name := cp.Policy.Name
	if cp.Policy.IsBackward() {
		name = strings.TrimSuffix(name, "-backward")
		cp.CounterName = name
		cp.CounterIsBackward = true
		return
	}
	cp.CounterName = name
}

// groupName is the policy name embedded in the "log prefix" directive
// (spec.md §6) and relied on by the reconciliation pipeline: it is
// always "<interaction>#<policy>", using the pseudo-interaction name
// "single" for true single policies so every log row's policy field
// contains exactly one "#".
func groupName(cp *CompiledPolicy) string {
	if cp.Policy.Interaction != "" {
		return cp.Policy.Interaction + "#" + cp.Policy.Name
	}
	return "single#" + cp.Policy.Name
}

func matchSetKey(matches []string) string {
	cp := append([]string(nil), matches...)
	sort.Strings(cp)
	return strings.Join(cp, "\x00")
}

func renderGroupRule(g *Group, opts Options) string {
	var parts []string
	parts = append(parts, g.NFTMatches...)
	if g.Rate != nil {
		parts = append(parts, renderRate(g.Rate))
	}
	if g.Size != nil {
		parts = append(parts, renderSize(g.Size))
	}

	verdict := "accept"
	logVerdict := "ACCEPT"
	if g.QueueNum >= 0 {
		verdict = fmt.Sprintf("queue num %d", g.QueueNum)
		logVerdict = "QUEUE"
	}
	switch opts.LogType {
	case "csv":
		parts = append(parts, fmt.Sprintf("log prefix \"%s,,%s\" group %d", g.Name, logVerdict, opts.LogGroup))
	case "pcap":
		parts = append(parts, fmt.Sprintf("log group %d", opts.LogGroup))
	}
	parts = append(parts, verdict)
	return strings.Join(parts, " ")
}

func renderRate(r *profile.RateStat) string {
	if r.PerSecond == 0 {
		return ""
	}
	rate := fmt.Sprintf("limit rate %d/second", int(r.PerSecond))
	if r.Burst > 0 {
		rate += fmt.Sprintf(" burst %d %s", r.Burst, r.BurstUnit)
	}
	return rate
}

func renderSize(s *profile.SizeStat) string {
	if s.Lower == 0 {
		return fmt.Sprintf("ip length < %d", s.Upper)
	}
	return fmt.Sprintf("ip length %d-%d", s.Lower, s.Upper)
}
