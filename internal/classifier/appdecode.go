// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"bufio"
	"bytes"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// decodeDHCP populates dhcp.type/dhcp.client-mac from a UDP payload that
// parses as a DHCPv4 message; non-DHCP payloads are silently ignored.
func decodeDHCP(payload []byte, pkt *Packet) {
	msg, err := dhcpv4.FromBytes(payload)
	if err != nil {
		return
	}
	if name, ok := dhcpMessageTypeNames[msg.MessageType()]; ok {
		pkt.Fields["dhcp.type"] = "DHCP_" + name
	}
	if mac := msg.ClientHWAddr; mac != nil {
		pkt.Fields["dhcp.client-mac"] = mac.String()
	}
}

var dhcpMessageTypeNames = map[dhcpv4.MessageType]string{
	dhcpv4.MessageTypeDiscover: "DISCOVER",
	dhcpv4.MessageTypeOffer:    "OFFER",
	dhcpv4.MessageTypeRequest:  "REQUEST",
	dhcpv4.MessageTypeDecline:  "DECLINE",
	dhcpv4.MessageTypeAck:      "ACK",
	dhcpv4.MessageTypeNak:      "NAK",
	dhcpv4.MessageTypeRelease:  "RELEASE",
	dhcpv4.MessageTypeInform:   "INFORM",
}

// decodeHTTPLike parses a request/response-line protocol (HTTP, SSDP's
// HTTP-alike search/notify messages) using net/http's own line parser:
// neither gopacket nor any corpus dependency decodes a standalone
// single-datagram HTTP-style message without a full TCP stream
// reassembler, so this leans on the standard library for the request
// line only. fieldPrefix ("http"/"ssdp") names the Packet.Fields keys;
// valuePrefix ("HTTP"/"SSDP") names the enum-style values the matching
// protocol clause parser emits (app.go's "HTTP_"/"SSDP_" constants).
func decodeHTTPLike(fieldPrefix, valuePrefix string, payload []byte, pkt *Packet) {
	line, _, _ := bytes.Cut(payload, []byte("\r\n"))
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return
	}

	if strings.HasPrefix(fields[0], "HTTP/") {
		pkt.Fields[fieldPrefix+".is_request"] = "0"
		return
	}

	req, err := http.ReadRequest(textproto.NewReader(bufio.NewReader(bytes.NewReader(payload))))
	method, uri := fields[0], ""
	if len(fields) > 1 {
		uri = fields[1]
	}
	if err == nil {
		method, uri = req.Method, req.URL.Path
	}
	pkt.Fields[fieldPrefix+".is_request"] = "1"
	pkt.Fields[fieldPrefix+".method"] = valuePrefix + "_" + strings.ToUpper(method)
	pkt.Fields[fieldPrefix+".uri"] = uri
}

// coapCode classes: 0.xx are requests, 2.xx-5.xx are responses (RFC 7252 §3).
var coapMethodNames = map[byte]string{1: "GET", 2: "POST", 3: "PUT", 4: "DELETE"}

// decodeCoAP parses CoAP's fixed 4-byte header for its request method;
// no corpus dependency parses CoAP, so this decodes the fixed header
// directly per RFC 7252.
func decodeCoAP(payload []byte, pkt *Packet) {
	if len(payload) < 4 {
		return
	}
	code := payload[1]
	class, detail := code>>5, code&0x1f
	if class != 0 {
		pkt.Fields["coap.type"] = "COAP_RESPONSE"
		return
	}
	pkt.Fields["coap.type"] = "COAP_REQUEST"
	if name, ok := coapMethodNames[detail]; ok {
		pkt.Fields["coap.method"] = "COAP_" + name
	}
}
