// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"strings"

	"grimm.is/flywall/internal/profile"
)

func init() {
	register(icmpProtocol{})
	register(icmpv6Protocol{})
}

type icmpProtocol struct{}

func (icmpProtocol) Name() string { return "icmp" }

func (icmpProtocol) Parse(clause profile.ProtocolClause, backward bool, _ string) (ParseResult, error) {
	var r ParseResult
	r.addNFT("meta l4proto icmp")
	if v, ok := clause["type"]; ok {
		r.addNFT("icmp type " + flipRequestReply(asString(v), backward))
	}
	return r, nil
}

type icmpv6Protocol struct{}

func (icmpv6Protocol) Name() string { return "icmpv6" }

// Parse handles ICMPv6. The reference profile corpus declares no
// supported clause fields for icmpv6 beyond the protocol match itself —
// the router this was distilled from never inspected ICMPv6 options.
func (icmpv6Protocol) Parse(_ profile.ProtocolClause, _ bool, _ string) (ParseResult, error) {
	var r ParseResult
	r.addNFT("meta l4proto icmpv6")
	return r, nil
}

func flipRequestReply(icmpType string, backward bool) string {
	if !backward {
		return icmpType
	}
	if strings.Contains(icmpType, "request") {
		return strings.ReplaceAll(icmpType, "request", "reply")
	}
	if strings.Contains(icmpType, "reply") {
		return strings.ReplaceAll(icmpType, "reply", "request")
	}
	return icmpType
}
