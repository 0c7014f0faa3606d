// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/flywall/internal/profile"
)

func twoStepInteraction() *profile.Profile {
	p0 := &profile.Policy{Name: "query", Interaction: "flow", Kind: profile.OneOff, Index: 0}
	p1 := &profile.Policy{Name: "connect", Interaction: "flow", Kind: profile.OneOff, Index: 1}
	return &profile.Profile{
		Device:       profile.Device{Name: "phone"},
		Interactions: []*profile.Interaction{{Name: "flow", Policies: []*profile.Policy{p0, p1}}},
	}
}

func TestLink_FirstStepAcceptedIsGroundTruth(t *testing.T) {
	rows := []Row{{ID: "1", Hash: "h1", Policy: "flow#query", Verdict: Accept}}
	final := Link(rows, nil, nil, twoStepInteraction())
	assert.Equal(t, Accept, final[0].ExpectedVerdict)
	assert.Equal(t, ReasonGroundTruth, final[0].Reason)
}

func TestLink_SecondStepAfterAcceptedFirstIsGroundTruth(t *testing.T) {
	rows := []Row{
		{ID: "1", Hash: "h1", Policy: "flow#query", Verdict: Accept},
		{ID: "2", Hash: "h2", Policy: "flow#connect", Verdict: Accept},
	}
	final := Link(rows, nil, nil, twoStepInteraction())
	assert.Equal(t, Accept, final[1].ExpectedVerdict)
	assert.Equal(t, ReasonGroundTruth, final[1].Reason)
}

func TestLink_SecondStepWithoutPrecedingStepIsExpectedDrop(t *testing.T) {
	rows := []Row{{ID: "2", Hash: "h2", Policy: "flow#connect", Verdict: Accept}}
	final := Link(rows, nil, nil, twoStepInteraction())
	assert.Equal(t, Drop, final[0].ExpectedVerdict)
	assert.Equal(t, ReasonInteraction, final[0].Reason)
}

func TestLink_UnknownPolicyPrefixFallsBackToGroundTruthLog(t *testing.T) {
	rows := []Row{{ID: "1", Hash: "h1", Policy: "default-drop", Verdict: Drop}}
	groundTruth := []Row{{ID: "1", Verdict: Drop}}
	final := Link(rows, groundTruth, nil, twoStepInteraction())
	assert.Equal(t, Drop, final[0].ExpectedVerdict)
	assert.Equal(t, ReasonGroundTruth, final[0].Reason)
}

func TestLink_EditedPacketOutsideDeclaredQtypeIsExpectedDrop(t *testing.T) {
	dnsInteraction := &profile.Profile{
		SinglePolicies: []*profile.Policy{{
			Name: "query",
			Protocols: map[string]profile.ProtocolClause{
				"dns": {"qtype": []string{"A"}},
			},
			Kind: profile.OneOff,
		}},
	}
	rows := []Row{{ID: "1", Hash: "newhash", Policy: "single#query", Verdict: Accept}}
	edits := []EditRecord{{NewHash: "newhash", OldHash: "oldhash", Protocol: "DNS", Field: "qtype", NewValue: "28"}} // 28 = AAAA
	final := Link(rows, nil, edits, dnsInteraction)
	assert.Equal(t, Drop, final[0].ExpectedVerdict)
	assert.Equal(t, ReasonEdited, final[0].Reason)
}

func TestLink_EditedPacketWithinDeclaredQtypeProceedsNormally(t *testing.T) {
	dnsInteraction := &profile.Profile{
		SinglePolicies: []*profile.Policy{{
			Name: "query",
			Protocols: map[string]profile.ProtocolClause{
				"dns": {"qtype": []string{"A", "AAAA"}},
			},
			Kind: profile.OneOff,
		}},
	}
	rows := []Row{{ID: "1", Hash: "newhash", Policy: "single#query", Verdict: Accept}}
	edits := []EditRecord{{NewHash: "newhash", OldHash: "oldhash", Protocol: "DNS", Field: "qtype", NewValue: "28"}}
	final := Link(rows, nil, edits, dnsInteraction)
	assert.NotEqual(t, ReasonEdited, final[0].Reason, "qtype change within the declared set must not be treated as non-compliant")
}

func TestMDNSQRFlipIsAlwaysCompliant(t *testing.T) {
	edit := EditRecord{NewHash: "h", OldHash: "o", Protocol: "mDNS", Field: "qr"}
	assert.True(t, isCompliant(Row{}, edit, nil))
}

func TestIsDefaultDrop_NoHashMeansDefaultDrop(t *testing.T) {
	assert.True(t, isDefaultDrop("default-drop"))
	assert.False(t, isDefaultDrop("single#query"))
}

func TestIsSameInteraction_MatchesByInteractionName(t *testing.T) {
	assert.True(t, isSameInteraction("flow#query", "flow#connect"))
	assert.False(t, isSameInteraction("other#query", "flow#connect"))
}

func TestBacktrackExpectedPrevious_PeriodicChainsBackThroughPredecessors(t *testing.T) {
	p0 := &profile.Policy{Name: "beacon", Kind: profile.Periodic}
	p1 := &profile.Policy{Name: "beacon2", Kind: profile.Periodic}
	p2 := &profile.Policy{Name: "query", Kind: profile.OneOff}
	policies := []*profile.Policy{p0, p1, p2}

	expected := backtrackExpectedPrevious(policies, 2)
	assert.Contains(t, expected, "beacon2")
	assert.Contains(t, expected, "beacon", "a periodic predecessor's own predecessor must also be included")
}
