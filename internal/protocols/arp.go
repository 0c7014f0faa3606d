// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import "grimm.is/flywall/internal/profile"

func init() { register(arpProtocol{}) }

type arpProtocol struct{}

func (arpProtocol) Name() string { return "arp" }

// Parse handles ARP's five recognized fields: type, sha/tha (hardware
// addresses), spa/tpa (protocol addresses). Backward inverts operation
// (request<->reply) and swaps sender/target roles.
func (arpProtocol) Parse(clause profile.ProtocolClause, backward bool, _ string) (ParseResult, error) {
	var r ParseResult

	if v, ok := clause["type"]; ok {
		op := asString(v)
		if backward {
			switch op {
			case "request":
				op = "reply"
			case "reply":
				op = "request"
			}
		}
		r.addNFT("arp operation " + op)
	}

	dev := profile.Device{} // left empty: the profile loader has already replaced "self" tokens
	if v, ok := clause["sha"]; ok {
		mac := explicitMAC(asString(v), dev)
		r.addNFT(swap(backward, "arp saddr ether ", "arp daddr ether ") + mac)
	}
	if v, ok := clause["tha"]; ok {
		mac := explicitMAC(asString(v), dev)
		r.addNFT(swap(backward, "arp daddr ether ", "arp saddr ether ") + mac)
	}
	if v, ok := clause["spa"]; ok {
		ip := explicitIPv4(asString(v), dev)
		r.addNFT(swap(backward, "arp saddr ip ", "arp daddr ip ") + ip)
	}
	if v, ok := clause["tpa"]; ok {
		ip := explicitIPv4(asString(v), dev)
		r.addNFT(swap(backward, "arp daddr ip ", "arp saddr ip ") + ip)
	}
	return r, nil
}
