// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"strings"

	"github.com/miekg/dns"
)

// decodeDNS parses a UDP payload as DNS/mDNS (port 53/5353 share wire
// format) and populates pkt's dns.*/mdns.* fields for predicate matching.
// It returns nothing; the name-to-address bindings that feed the live DNS
// map (spec.md §4.4) are extracted by dnsAnswers.
func decodeDNS(payload []byte, pkt *Packet) {
	if len(payload) == 0 {
		return
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return
	}

	qr := "0"
	if msg.Response {
		qr = "1"
	}
	pkt.Fields["dns.qr"] = qr
	pkt.Fields["mdns.qr"] = qr

	if len(msg.Question) > 0 {
		q := msg.Question[0]
		qtype := dns.TypeToString[q.Qtype]
		pkt.Fields["dns.qtype"] = qtype
		pkt.Fields["mdns.qtype"] = qtype
		name := strings.TrimSuffix(q.Name, ".")
		pkt.Fields["dns.domain-name"] = name
		pkt.Fields["mdns.domain-name"] = name
	}
}

// dnsAnswers extracts every A/AAAA binding from a DNS/mDNS response
// payload, for the classifier's live DNS map.
func dnsAnswers(payload []byte) map[string]string {
	out := map[string]string{}
	if len(payload) == 0 {
		return out
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil || !msg.Response {
		return out
	}
	for _, rr := range msg.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			out[strings.TrimSuffix(rec.Hdr.Name, ".")] = rec.A.String()
		case *dns.AAAA:
			out[strings.TrimSuffix(rec.Hdr.Name, ".")] = rec.AAAA.String()
		}
	}
	return out
}
