// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import "grimm.is/flywall/internal/profile"

func init() {
	register(transportProtocol{name: "tcp"})
	register(transportProtocol{name: "udp"})
}

// transportProtocol implements the shared layer-4 src-port/dst-port
// matching used by both tcp and udp.
type transportProtocol struct{ name string }

func (p transportProtocol) Name() string { return p.name }

func (p transportProtocol) Parse(clause profile.ProtocolClause, backward bool, initiator string) (ParseResult, error) {
	var r ParseResult
	r.addNFT("meta l4proto " + p.name)

	for _, dir := range []string{"src-port", "dst-port"} {
		v, ok := clause[dir]
		if !ok {
			continue
		}
		isSrc := dir == "src-port"
		effectiveSrc := isSrc
		if initiator != "" {
			if (initiator == "src" && backward) || (initiator == "dst" && !backward) {
				effectiveSrc = !isSrc
			}
		} else if backward {
			effectiveSrc = !isSrc
		}

		word := "dport"
		if effectiveSrc {
			word = "sport"
		}
		ports := asStringList(v)
		r.addNFT(p.name + " " + word + " " + disjunction(ports))
	}
	return r, nil
}
