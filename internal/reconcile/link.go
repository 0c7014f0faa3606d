// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reconcile

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"grimm.is/flywall/internal/profile"
)

// Link resolves the expected verdict for every merged row by checking
// whether it was edited out of compliance and, if not, walking its
// interaction backwards to confirm the preceding step was accepted
// (spec.md §6, grounded on original_source's link-interactions.py).
func Link(mergedRows, groundTruth []Row, edits []EditRecord, prof *profile.Profile) []FinalRow {
	final := make([]FinalRow, len(mergedRows))
	for i := range mergedRows {
		final[i] = linkOne(mergedRows, i, groundTruth, edits, prof)
	}
	return final
}

func linkOne(rows []Row, i int, groundTruth []Row, edits []EditRecord, prof *profile.Profile) FinalRow {
	row := rows[i]
	actual := row.Verdict

	if edit, ok := findEdit(edits, row.Hash); ok {
		if !isCompliant(row, edit, prof) {
			return finalOf(row, actual, Drop, ReasonEdited)
		}
	}

	parts := strings.SplitN(row.Policy, "#", 2)
	if len(parts) != 2 {
		// Dropped by the kernel's default rule, no policy attached.
		return finalOf(row, actual, groundTruthVerdict(groundTruth, row.ID), ReasonGroundTruth)
	}
	interactionName, policyName := parts[0], parts[1]
	fwdPolicyName := strings.TrimSuffix(policyName, "-backward")

	var (
		policy       profile.Policy
		policyNames  []*profile.Policy
		policyIdx    int
		isFirst      bool
		expectedPrev []string
	)

	if interactionName == "single" {
		pol, found := findSinglePolicy(prof, fwdPolicyName)
		if found {
			policy = *pol
		}
		if policy.Kind == profile.OneOff && policy.Bidirectional {
			if isBackward(policyName) {
				isFirst = false
				expectedPrev = append(expectedPrev, fwdPolicyName)
			} else {
				isFirst = true
				expectedPrev = append(expectedPrev, fwdPolicyName+"-backward")
			}
		} else {
			// Unidirectional one-off, or transient/periodic: no
			// interaction ordering constrains this packet.
			return finalOf(row, actual, actual, ReasonGroundTruth)
		}
	} else {
		it, found := findInteraction(prof, interactionName)
		if !found {
			return finalOf(row, actual, groundTruthVerdict(groundTruth, row.ID), ReasonGroundTruth)
		}
		policyNames = it.Policies
		policyIdx = indexOfPolicy(policyNames, fwdPolicyName)
		if policyIdx < 0 {
			return finalOf(row, actual, groundTruthVerdict(groundTruth, row.ID), ReasonGroundTruth)
		}
		policy = *policyNames[policyIdx]
		isFirst = policyIdx == 0

		if (policy.Kind == profile.OneOff || policy.Kind == profile.Transient) && policy.Bidirectional && isBackward(policyName) {
			expectedPrev = append(expectedPrev, fwdPolicyName)
		} else {
			expectedPrev = backtrackExpectedPrevious(policyNames, policyIdx)
		}
	}

	return linkBackward(rows, i, row, actual, interactionName, policyName, fwdPolicyName, policy, expectedPrev, isFirst)
}

// backtrackExpectedPrevious walks backwards from policyIdx, collecting
// every policy name that could legitimately precede the current one:
// a periodic predecessor's own predecessor is added too (periodic
// steps don't advance the interaction's state), and a bidirectional
// predecessor contributes its "-backward" twin alongside the forward
// name where applicable.
func backtrackExpectedPrevious(policies []*profile.Policy, policyIdx int) []string {
	var expected []string
	backtrackIdx := policyIdx - 1
	for {
		idx := backtrackIdx
		if idx < 0 {
			idx += len(policies)
		}
		prevPolicy := policies[idx]
		prevName := prevPolicy.Name
		if prevPolicy.Kind == profile.OneOff && prevPolicy.Bidirectional {
			prevName += "-backward"
		}
		expected = append(expected, prevName)

		if (prevPolicy.Kind == profile.Transient || prevPolicy.Kind == profile.Periodic) && prevPolicy.Bidirectional {
			expected = append(expected, prevName+"-backward")
		}

		if prevPolicy.Kind == profile.Periodic {
			backtrackIdx--
			continue
		}
		break
	}
	return expected
}

// linkBackward scans the log backwards from row i-1, looking for the
// interaction's previous accepted step.
func linkBackward(rows []Row, i int, row Row, actual Verdict, interactionName, policyName, fwdPolicyName string, policy profile.Policy, expectedPrev []string, isFirst bool) FinalRow {
	seenPrevious := false
	for j := i - 1; j >= 0; j-- {
		prevRow := rows[j]
		if isDefaultDrop(prevRow.Policy) {
			continue
		}
		if !isSameInteraction(prevRow.Policy, row.Policy) {
			continue
		}

		prevParts := strings.SplitN(prevRow.Policy, "#", 2)
		actualPrevName := ""
		if len(prevParts) == 2 {
			actualPrevName = prevParts[1]
		}
		actualPrevVerdict := prevRow.Verdict

		samePolicy := actualPrevName == policyName ||
			(policy.Kind != profile.OneOff && isSamePolicy(fwdPolicyName, actualPrevName))

		if samePolicy {
			if policy.Kind != profile.OneOff && actualPrevVerdict == Accept {
				return finalOf(row, actual, actual, ReasonGroundTruth)
			}
			if seenPrevious && policy.Kind == profile.OneOff && actualPrevVerdict == Accept && !contains(expectedPrev, policyName) {
				return finalOf(row, actual, Drop, ReasonInteraction)
			}
			continue
		}

		if contains(expectedPrev, actualPrevName) {
			seenPrevious = true
			if actualPrevVerdict == Accept {
				return finalOf(row, actual, actual, ReasonGroundTruth)
			}
			continue
		}

		if actualPrevVerdict == Accept {
			// An unrelated, too-old step was accepted; the expected
			// predecessor was never seen.
			return finalOf(row, actual, Drop, ReasonInteraction)
		}
	}

	if isFirst {
		return finalOf(row, actual, actual, ReasonGroundTruth)
	}
	return finalOf(row, actual, Drop, ReasonInteraction)
}

func finalOf(row Row, actual, expected Verdict, reason Reason) FinalRow {
	return FinalRow{Row: row, ActualVerdict: actual, ExpectedVerdict: expected, Reason: reason}
}

func groundTruthVerdict(groundTruth []Row, id string) Verdict {
	for _, row := range groundTruth {
		if row.ID == id && row.Verdict == Accept {
			return Accept
		}
	}
	return Drop
}

func findEdit(edits []EditRecord, hash string) (EditRecord, bool) {
	for _, e := range edits {
		if e.NewHash == hash && e.NewHash != e.OldHash {
			return e, true
		}
	}
	return EditRecord{}, false
}

// isCompliant reports whether an edited packet still satisfies the
// policy it was matched against. Only (m)DNS edits are evaluated: a
// flipped mDNS QR bit is always tolerated, and a changed query type is
// checked against the policy's declared qtype set.
func isCompliant(row Row, edit EditRecord, prof *profile.Profile) bool {
	if edit.Protocol != "DNS" && edit.Protocol != "mDNS" {
		return false
	}
	if edit.Protocol == "mDNS" && edit.Field == "qr" {
		return true
	}
	if edit.Field != "qtype" {
		return false
	}

	protocol := strings.ToLower(edit.Protocol)
	parts := strings.SplitN(row.Policy, "#", 2)
	if len(parts) != 2 {
		return false
	}
	interactionName, policyName := parts[0], strings.TrimSuffix(parts[1], "-backward")

	var clause profile.ProtocolClause
	if interactionName == "single" {
		pol, found := findSinglePolicy(prof, policyName)
		if !found {
			return false
		}
		clause = pol.Protocols[protocol]
	} else {
		it, found := findInteraction(prof, interactionName)
		if !found {
			return false
		}
		idx := indexOfPolicy(it.Policies, policyName)
		if idx < 0 {
			return false
		}
		clause = it.Policies[idx].Protocols[protocol]
	}
	if clause == nil {
		return false
	}

	rawQtype, ok := clause["qtype"]
	if !ok {
		return false
	}

	newTypeNum, err := strconv.Atoi(edit.NewValue)
	if err != nil {
		return false
	}
	newQtype := dns.TypeToString[uint16(newTypeNum)]

	switch v := rawQtype.(type) {
	case []string:
		return contains(v, newQtype)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, newQtype) {
				return true
			}
		}
		return false
	case string:
		return strings.EqualFold(v, newQtype)
	default:
		return false
	}
}

func isDefaultDrop(policy string) bool {
	return len(strings.SplitN(policy, "#", 2)) == 1
}

func isSameInteraction(previousPolicy, currentPolicy string) bool {
	prevParts := strings.SplitN(previousPolicy, "#", 2)
	if len(prevParts) != 2 {
		return false
	}
	curParts := strings.SplitN(currentPolicy, "#", 2)
	if len(curParts) != 2 {
		return false
	}
	currentInteraction, currentPolicyName := curParts[0], curParts[1]
	isSameSingle := prevParts[0] == "single" &&
		(strings.Contains(prevParts[1], currentPolicyName) || strings.Contains(currentPolicyName, prevParts[1]))
	return prevParts[0] == currentInteraction || isSameSingle
}

func isSamePolicy(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func isBackward(policyName string) bool {
	return strings.HasSuffix(policyName, "-backward")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func findSinglePolicy(prof *profile.Profile, name string) (*profile.Policy, bool) {
	for _, p := range prof.SinglePolicies {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func findInteraction(prof *profile.Profile, name string) (*profile.Interaction, bool) {
	for _, it := range prof.Interactions {
		if it.Name == name {
			return it, true
		}
	}
	return nil, false
}

func indexOfPolicy(policies []*profile.Policy, name string) int {
	for i, p := range policies {
		if p.Name == name {
			return i
		}
	}
	return -1
}
