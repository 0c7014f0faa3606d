// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import "grimm.is/flywall/internal/profile"

func init() { register(igmpProtocol{}) }

var igmpGroups = map[string]string{
	"all":  "224.0.0.2",
	"mdns": "224.0.0.251",
	"ssdp": "239.255.255.250",
	"coap": "224.0.1.187",
}

type igmpProtocol struct{}

func (igmpProtocol) Name() string { return "igmp" }

// Parse handles IGMP's type/group fields; a version field is read but does
// not change the result. IGMP message content
// needs userspace decoding (the kernel has no igmp match expression), so
// type/group checks are reported as userspace predicates rather than nft
// fragments.
func (igmpProtocol) Parse(clause profile.ProtocolClause, _ bool, _ string) (ParseResult, error) {
	var r ParseResult
	r.addNFT("meta l4proto igmp")

	version := 2
	if v, ok := clause["version"]; ok {
		version = int(toFloat(v))
	}
	if v, ok := clause["type"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{
			Field: "igmp.type", Op: "eq", Value: upperUnderscore(asString(v)),
		})
	}
	if v, ok := clause["group"]; ok {
		group := asString(v)
		if explicit, ok := igmpGroups[group]; ok {
			group = explicit
		}
		r.Userspace = append(r.Userspace, UserspaceMatch{
			Field: "igmp.group", Op: "eq", Value: group,
		})
	}
	_ = version
	return r, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}
