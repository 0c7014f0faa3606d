// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows_ParsesAllColumns(t *testing.T) {
	csv := "id,hash,timestamp,policy,verdict\n1,abc123,10.5,single#query,ACCEPT\n"
	rows, err := ReadRows(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "abc123", rows[0].Hash)
	assert.Equal(t, 10.5, rows[0].Timestamp)
	assert.Equal(t, "single#query", rows[0].Policy)
	assert.Equal(t, Accept, rows[0].Verdict)
}

func TestReadRows_SkipsMalformedRowsWithoutFailing(t *testing.T) {
	csv := "id,hash,timestamp,policy,verdict\n1,abc,not-a-number,single#query,ACCEPT\n2,def,1.0,single#query,DROP\n"
	rows, err := ReadRows(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)
}

func TestReadRows_MissingRequiredColumnSkipsRow(t *testing.T) {
	csv := "id,hash,policy,verdict\n1,abc,single#query,ACCEPT\n"
	rows, err := ReadRows(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWriteRows_RoundTripsThroughReadRows(t *testing.T) {
	rows := []Row{{ID: "1", Hash: "abc", Timestamp: 1.5, TimestampS: "1.5", Policy: "single#q", Verdict: Accept}}
	var buf strings.Builder
	require.NoError(t, WriteRows(&buf, rows))

	back, err := ReadRows(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, rows[0].ID, back[0].ID)
	assert.Equal(t, rows[0].Policy, back[0].Policy)
}

func TestReadEditLog_ParsesAllFields(t *testing.T) {
	csv := "id,timestamp,protocol,field,old_value,new_value,old_hash,new_hash\n1,1.0,dns,qtype,A,AAAA,old,new\n"
	edits, err := ReadEditLog(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "dns", edits[0].Protocol)
	assert.Equal(t, "qtype", edits[0].Field)
	assert.Equal(t, "new", edits[0].NewHash)
}

func TestWriteFinalRows_UsesRenamedAndAppendedColumns(t *testing.T) {
	rows := []FinalRow{{
		Row:             Row{ID: "1", Hash: "abc", TimestampS: "1.0", Policy: "single#q"},
		ActualVerdict:   Accept,
		ExpectedVerdict: Accept,
		Reason:          ReasonGroundTruth,
	}}
	var buf strings.Builder
	require.NoError(t, WriteFinalRows(&buf, rows))
	out := buf.String()
	assert.Contains(t, out, "expected_verdict")
	assert.Contains(t, out, "actual_verdict")
	assert.Contains(t, out, "GROUND_TRUTH")
}
