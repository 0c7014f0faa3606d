// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package classifier is the stateful userspace half of the firewall:
// for every packet the kernel ruleset hands to an nfqueue, it decides
// whether the owning interaction's next policy actually matches, tracks
// per-interaction DNS bindings and rate/size/count/duration counters,
// and renders a final accept/drop verdict (spec.md §4.4).
package classifier

import "time"

// Packet is the decoded subset of a queued packet the classifier's
// userspace predicates need. Workers populate it from gopacket layers
// and protocol-specific parsers (miekg/dns, insomniacslk/dhcp) before
// handing it to Evaluate.
type Packet struct {
	Length int
	SrcIP  string
	DstIP  string
	SrcMAC string
	DstMAC string

	Seen time.Time

	// Fields keyed the same way protocols.UserspaceMatch.Field names
	// them, e.g. "dns.qtype", "http.method", "coap.method". Populated by
	// whichever application-layer parser recognized the payload.
	Fields map[string]string

	// dnsAnswers holds any A/AAAA bindings observed if this packet is a
	// DNS/mDNS response, for the worker to feed into the live DNS map.
	dnsAnswers map[string]string
}

func (p *Packet) field(name string) (string, bool) {
	if p.Fields == nil {
		return "", false
	}
	v, ok := p.Fields[name]
	return v, ok
}
