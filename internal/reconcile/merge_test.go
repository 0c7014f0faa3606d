// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_NonQueueRowsPassThroughUnchanged(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Policy: "single#accept-all", Verdict: Accept}}
	merged := Merge(kernel, nil, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "single#accept-all", merged[0].Policy)
}

func TestMerge_DropRowGetsGroundTruthPolicySubstituted(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Policy: "", Verdict: Drop}}
	groundTruth := []Row{{ID: "1", Policy: "single#default-drop"}}
	merged := Merge(kernel, nil, groundTruth)
	require.Len(t, merged, 1)
	assert.Equal(t, "single#default-drop", merged[0].Policy)
}

func TestMerge_QueueRowZipsOneToOneWithClassifierRow(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Verdict: Queue}}
	classifier := []Row{{ID: "c1", Hash: "h1", Timestamp: 1.0, Policy: "dns-then-https#query", Verdict: Accept}}
	merged := Merge(kernel, classifier, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "1", merged[0].ID, "merged row keeps the kernel row's id")
	assert.Equal(t, "dns-then-https#query", merged[0].Policy)
	assert.Equal(t, Accept, merged[0].Verdict)
}

func TestMerge_QueueRowFansOutToMultipleClassifierRows(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Verdict: Queue}}
	classifier := []Row{
		{ID: "c1", Hash: "h1", Timestamp: 1.0, Policy: "it#a", Verdict: Accept},
		{ID: "c2", Hash: "h1", Timestamp: 1.0, Policy: "it#b", Verdict: Accept},
	}
	merged := Merge(kernel, classifier, nil)
	require.Len(t, merged, 2)
	assert.Equal(t, "it#a", merged[0].Policy)
	assert.Equal(t, "it#b", merged[1].Policy)
}

func TestMerge_QueueRowWithNoClassifierMatchIsSkippedNotFatal(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Verdict: Queue}}
	merged := Merge(kernel, nil, nil)
	assert.Empty(t, merged)
}

func TestMerge_ZippedDropGetsGroundTruthPolicyNotClassifierPolicy(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Verdict: Queue}}
	classifier := []Row{{ID: "c1", Hash: "h1", Timestamp: 1.0, Policy: "it#a", Verdict: Drop}}
	groundTruth := []Row{{ID: "1", Policy: "it#default-drop"}}
	merged := Merge(kernel, classifier, groundTruth)
	require.Len(t, merged, 1)
	assert.Equal(t, "it#default-drop", merged[0].Policy)
}

func TestMerge_EmptyClassifierPolicyFallsBackToKernelPolicy(t *testing.T) {
	kernel := []Row{{ID: "1", Hash: "h1", Timestamp: 1.0, Policy: "single#fallback", Verdict: Queue}}
	classifier := []Row{{ID: "c1", Hash: "h1", Timestamp: 1.0, Policy: "", Verdict: Accept}}
	merged := Merge(kernel, classifier, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "single#fallback", merged[0].Policy)
}

func TestCollectByHashTimestamp_StopsAtLaterTimestamp(t *testing.T) {
	rows := []Row{
		{Hash: "h1", Timestamp: 1.0},
		{Hash: "h1", Timestamp: 1.0},
		{Hash: "h1", Timestamp: 2.0},
	}
	group, nextIdx := collectByHashTimestamp(rows, "h1", 1.0, 0)
	assert.Len(t, group, 2)
	assert.Equal(t, 2, nextIdx)
}
