// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/profile"
)

func TestTransport_DstPortForward(t *testing.T) {
	p := transportProtocol{name: "tcp"}
	res, err := p.Parse(profile.ProtocolClause{"dst-port": "443"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "tcp dport 443")
}

func TestTransport_DstPortBackwardBecomesSport(t *testing.T) {
	p := transportProtocol{name: "tcp"}
	res, err := p.Parse(profile.ProtocolClause{"dst-port": "443"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "tcp sport 443")
}

func TestTransport_InitiatorDstForwardKeepsDport(t *testing.T) {
	p := transportProtocol{name: "tcp"}
	res, err := p.Parse(profile.ProtocolClause{"dst-port": "443"}, false, "dst")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "tcp dport 443")
}

func TestTransport_InitiatorDstBackwardInvertsToSport(t *testing.T) {
	p := transportProtocol{name: "tcp"}
	res, err := p.Parse(profile.ProtocolClause{"dst-port": "443"}, true, "dst")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "tcp sport 443")
}

func TestTransport_MultiplePortsFormDisjunction(t *testing.T) {
	p := transportProtocol{name: "udp"}
	res, err := p.Parse(profile.ProtocolClause{"dst-port": []any{"53", "5353"}}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "udp dport { 53, 5353 }")
}

func TestTransport_AlwaysMatchesOwnL4Proto(t *testing.T) {
	p := transportProtocol{name: "tcp"}
	res, err := p.Parse(profile.ProtocolClause{}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "meta l4proto tcp")
}
