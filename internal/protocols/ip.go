// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import "grimm.is/flywall/internal/profile"

func init() {
	register(ipProtocol{version: 4})
	register(ipProtocol{version: 6})
}

// ipProtocol implements the shared "ipv4"/"ipv6" address-matching logic.
// A src/dst value that isn't a literal IP or well-known alias is a domain
// name: it can't be matched statelessly, so it becomes a userspace
// predicate the classifier resolves against its DNS map (spec.md §4.4's
// "domain name or cached IP" disjunction).
type ipProtocol struct{ version int }

func (p ipProtocol) Name() string {
	if p.version == 6 {
		return "ipv6"
	}
	return "ipv4"
}

func (p ipProtocol) nftPrefix() string {
	if p.version == 6 {
		return "ip6"
	}
	return "ip"
}

func (p ipProtocol) explicit(addr string, dev profile.Device) string {
	if p.version == 6 {
		return explicitIPv6(addr, dev)
	}
	return explicitIPv4(addr, dev)
}

func (p ipProtocol) Parse(clause profile.ProtocolClause, backward bool, initiator string) (ParseResult, error) {
	var r ParseResult
	dev := profile.Device{}

	for _, dir := range []string{"src", "dst"} {
		v, ok := clause[dir]
		if !ok {
			continue
		}
		other := "src"
		if dir == "src" {
			other = "dst"
		}
		effectiveDir := dir
		if initiator != "" {
			// With an explicit initiator, src/dst are interpreted relative
			// to who opened the connection rather than packet direction.
			if (initiator == "src" && backward) || (initiator == "dst" && !backward) {
				effectiveDir = other
			}
		} else if backward {
			effectiveDir = other
		}

		addrLetter := "s"
		if effectiveDir == "dst" {
			addrLetter = "d"
		}
		values := asStringList(v)
		var literals []string
		for _, val := range values {
			if isIPLiteral(val) {
				literals = append(literals, p.explicit(val, dev))
			} else {
				r.Userspace = append(r.Userspace, UserspaceMatch{
					Field: p.Name() + "." + dir, Op: "eq-or-dns", Value: val,
				})
			}
		}
		if len(literals) > 0 {
			r.addNFT(p.nftPrefix() + " " + addrLetter + "addr " + disjunction(literals))
		}
	}
	return r, nil
}
