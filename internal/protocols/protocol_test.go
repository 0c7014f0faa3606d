// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/profile"
)

func TestLookup_UnknownProtocolReturnsUnsupportedError(t *testing.T) {
	_, err := Lookup("carrier-pigeon")
	require.Error(t, err)
}

func TestParseClause_UnsupportedProtocolIsSkippedNotFatal(t *testing.T) {
	clauses := map[string]profile.ProtocolClause{
		"carrier-pigeon": {"type": "homing"},
		"tcp":            {"dst-port": "443"},
	}
	res, err := ParseClause(clauses, false, "")
	require.NoError(t, err, "an unsupported protocol clause must warn and be skipped, not abort the policy")
	assert.Contains(t, res.NFTMatches, "tcp dport 443")
}

func TestParseClause_AllUnsupportedYieldsEmptyResult(t *testing.T) {
	clauses := map[string]profile.ProtocolClause{
		"carrier-pigeon": {"type": "homing"},
	}
	res, err := ParseClause(clauses, false, "")
	require.NoError(t, err)
	assert.Empty(t, res.NFTMatches)
	assert.Empty(t, res.Userspace)
}

func TestDisjunction_SingleValuePassesThrough(t *testing.T) {
	assert.Equal(t, "443", disjunction([]string{"443"}))
}

func TestDisjunction_MultipleValuesFormSetLiteral(t *testing.T) {
	assert.Equal(t, "{ 80, 443 }", disjunction([]string{"80", "443"}))
}
