// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/profile"
)

func TestARP_ForwardRequestKeepsOperation(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"type": "request"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp operation request")
}

func TestARP_BackwardFlipsRequestToReply(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"type": "request"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp operation reply")
}

func TestARP_BackwardFlipsReplyToRequest(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"type": "reply"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp operation request")
}

func TestARP_SenderHardwareAddressForward(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"sha": "aa:bb:cc:dd:ee:ff"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp saddr ether aa:bb:cc:dd:ee:ff")
}

func TestARP_SenderHardwareAddressBackwardSwapsRole(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"sha": "aa:bb:cc:dd:ee:ff"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp daddr ether aa:bb:cc:dd:ee:ff")
}

func TestARP_TargetProtocolAddressForward(t *testing.T) {
	res, err := arpProtocol{}.Parse(profile.ProtocolClause{"tpa": "192.168.1.1"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.NFTMatches, "arp daddr ip 192.168.1.1")
}
