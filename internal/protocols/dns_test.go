// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/profile"
)

func TestDNS_QueryClauseWantsQuestionNotResponse(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"domain-name": "example.com"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.qr", Op: "eq", Value: "0"})
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.domain-name", Op: "eq", Value: "example.com"})
}

func TestDNS_BackwardClauseInvertsQR(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"domain-name": "example.com"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.qr", Op: "eq", Value: "1"})
}

func TestDNS_ResponseFlagOnBackwardCancelsOut(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"response": true}, true, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.qr", Op: "eq", Value: "0"})
}

func TestDNS_WildcardDomainIsSuffixMatch(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"domain-name": "$example.com"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.domain-name", Op: "suffix", Value: "example.com"})
}

func TestDNS_MultipleDomainNamesEachProduceAMatch(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"domain-name": []any{"a.com", "$b.com"}}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.domain-name", Op: "eq", Value: "a.com"})
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.domain-name", Op: "suffix", Value: "b.com"})
}

func TestDNS_QtypeIsUppercased(t *testing.T) {
	p := dnsProtocol{name: "dns"}
	res, err := p.Parse(profile.ProtocolClause{"qtype": "a"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "dns.qtype", Op: "eq", Value: "A"})
}

func TestMDNS_UsesMdnsFieldPrefix(t *testing.T) {
	p := dnsProtocol{name: "mdns"}
	res, err := p.Parse(profile.ProtocolClause{"qtype": "ptr"}, false, "")
	require.NoError(t, err)
	assert.Contains(t, res.Userspace, UserspaceMatch{Field: "mdns.qtype", Op: "eq", Value: "PTR"})
}
