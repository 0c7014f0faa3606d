// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"strings"

	"grimm.is/flywall/internal/profile"
)

func init() {
	register(dhcpProtocol{})
	register(httpProtocol{})
	register(coapProtocol{})
	register(ssdpProtocol{})
}

// dhcpProtocol matches DHCP message type and client MAC. Both require
// decoding the DHCP option list, so they're userspace-only.
type dhcpProtocol struct{}

func (dhcpProtocol) Name() string { return "dhcp" }

func (dhcpProtocol) Parse(clause profile.ProtocolClause, _ bool, _ string) (ParseResult, error) {
	var r ParseResult
	if v, ok := clause["type"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "dhcp.type", Op: "eq", Value: "DHCP_" + upperUnderscore(asString(v))})
	}
	if v, ok := clause["client-mac"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "dhcp.client-mac", Op: "eq", Value: asString(v)})
	}
	return r, nil
}

// httpProtocol matches HTTP request/response, method, and URI
// (exact or prefix, marked by a trailing "*" or "$").
type httpProtocol struct{}

func (httpProtocol) Name() string { return "http" }

func (httpProtocol) Parse(clause profile.ProtocolClause, backward bool, _ string) (ParseResult, error) {
	var r ParseResult
	isResponse := false
	if v, ok := clause["response"]; ok {
		if b, ok := v.(bool); ok {
			isResponse = b
		}
	}
	wantRequest := isResponse == backward
	r.Userspace = append(r.Userspace, UserspaceMatch{Field: "http.is_request", Op: "eq", Value: boolStr(wantRequest)})

	if v, ok := clause["method"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "http.method", Op: "eq", Value: "HTTP_" + upperUnderscore(asString(v))})
	}
	if v, ok := clause["uri"]; ok {
		uri := asString(v)
		if strings.HasSuffix(uri, "*") || strings.HasSuffix(uri, "$") {
			r.Userspace = append(r.Userspace, UserspaceMatch{Field: "http.uri", Op: "prefix", Value: strings.TrimRight(uri, "*$")})
		} else {
			r.Userspace = append(r.Userspace, UserspaceMatch{Field: "http.uri", Op: "eq", Value: uri})
		}
	}
	return r, nil
}

// coapProtocol matches CoAP message type, method, and URI.
type coapProtocol struct{}

func (coapProtocol) Name() string { return "coap" }

func (coapProtocol) Parse(clause profile.ProtocolClause, _ bool, _ string) (ParseResult, error) {
	var r ParseResult
	if v, ok := clause["type"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "coap.type", Op: "eq", Value: "COAP_" + upperUnderscore(asString(v))})
	}
	if v, ok := clause["method"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "coap.method", Op: "eq", Value: "COAP_" + upperUnderscore(asString(v))})
	}
	if v, ok := clause["uri"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "coap.uri", Op: "eq", Value: asString(v)})
	}
	return r, nil
}

// ssdpProtocol matches SSDP request/response and method.
type ssdpProtocol struct{}

func (ssdpProtocol) Name() string { return "ssdp" }

func (ssdpProtocol) Parse(clause profile.ProtocolClause, backward bool, _ string) (ParseResult, error) {
	var r ParseResult
	isResponse := false
	if v, ok := clause["response"]; ok {
		if b, ok := v.(bool); ok {
			isResponse = b
		}
	}
	wantRequest := isResponse == backward
	r.Userspace = append(r.Userspace, UserspaceMatch{Field: "ssdp.is_request", Op: "eq", Value: boolStr(wantRequest)})

	if v, ok := clause["method"]; ok {
		r.Userspace = append(r.Userspace, UserspaceMatch{Field: "ssdp.method", Op: "eq", Value: "SSDP_" + upperUnderscore(asString(v))})
	}
	return r, nil
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
