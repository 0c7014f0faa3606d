// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"strings"

	"grimm.is/flywall/internal/profile"
)

func init() {
	register(dnsProtocol{name: "dns"})
	register(dnsProtocol{name: "mdns"})
}

// dnsWildcard marks a suffix-only domain match, e.g. "$example.com"
// matches any name ending in "example.com" (spec.md's clarified
// wildcard-domain open question: suffix-only, no prefix/infix support).
const dnsWildcard = "$"

// dnsProtocol implements both "dns" and "mdns" clauses: they share field
// names and semantics, differing only in the well-known multicast
// destination mDNS queries are typically paired with (handled by the
// ip/igmp clauses on the same policy, not here).
type dnsProtocol struct{ name string }

func (p dnsProtocol) Name() string { return p.name }

func (p dnsProtocol) Parse(clause profile.ProtocolClause, backward bool, _ string) (ParseResult, error) {
	var r ParseResult

	isResponse := false
	if v, ok := clause["response"]; ok {
		if b, ok := v.(bool); ok {
			isResponse = b
		}
	}
	wantResponse := isResponse != backward
	r.Userspace = append(r.Userspace, UserspaceMatch{
		Field: p.name + ".qr", Op: "eq", Value: boolToQR(wantResponse),
	})

	if v, ok := clause["qtype"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{
			Field: p.name + ".qtype", Op: "eq", Value: strings.ToUpper(asString(v)),
		})
	}

	if v, ok := clause["domain-name"]; ok {
		for _, name := range asStringList(v) {
			if strings.HasPrefix(name, dnsWildcard) {
				r.Userspace = append(r.Userspace, UserspaceMatch{
					Field: p.name + ".domain-name", Op: "suffix", Value: strings.TrimPrefix(name, dnsWildcard),
				})
			} else {
				r.Userspace = append(r.Userspace, UserspaceMatch{
					Field: p.name + ".domain-name", Op: "eq", Value: name,
				})
			}
		}
	}
	return r, nil
}

func boolToQR(isResponse bool) string {
	if isResponse {
		return "1"
	}
	return "0"
}
