// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package protocols implements the closed set of protocol parsers spec.md
// §6 recognizes, each translating a profile.ProtocolClause into the
// stateless nftables match fragments and/or stateful userspace predicates
// a policy needs. This replaces the reference implementation's
// name-dispatched per-protocol class hierarchy (spec.md §9) with a single
// Protocol interface and a closed registry keyed by Name.
package protocols

import (
	"fmt"
	"strings"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/profile"
)

// UserspaceMatch is a predicate the classifier must evaluate against a
// decoded packet rather than the kernel ruleset — anything keyed off
// application-layer content (DNS question names, HTTP method, DHCP
// options) or a domain name requiring the live DNS map.
type UserspaceMatch struct {
	Field string // dotted field, e.g. "dns.domain-name", "http.method"
	Op    string // "eq", "eq-or-dns", "suffix", "prefix"
	Value string
}

// ParseResult is one protocol's contribution to a policy's match set.
type ParseResult struct {
	// NFTMatches are nftables expression fragments (e.g. "tcp dport 443")
	// ANDed together to form the rule's match list.
	NFTMatches []string
	// Userspace holds predicates that can't be expressed in the kernel
	// ruleset and must be checked by a classifier worker after nfqueue
	// delivers the packet.
	Userspace []UserspaceMatch
}

func (r *ParseResult) addNFT(s string) {
	if s != "" {
		r.NFTMatches = append(r.NFTMatches, s)
	}
}

func (r *ParseResult) merge(other ParseResult) {
	r.NFTMatches = append(r.NFTMatches, other.NFTMatches...)
	r.Userspace = append(r.Userspace, other.Userspace...)
}

// Protocol parses one named protocol's clause fields into match fragments.
// Direction inversion (forward vs. backward) is each Protocol's own
// responsibility so the transform stays local to the fields it owns,
// rather than a single global table guessing at field semantics.
type Protocol interface {
	// Name is the protocol's profile-facing key, e.g. "tcp", "dns".
	Name() string
	// Parse translates clause into match fragments. backward is true when
	// parsing a policy's synthetic "-backward" twin; initiator is the
	// owning policy's declared connection initiator ("src", "dst", or "").
	Parse(clause profile.ProtocolClause, backward bool, initiator string) (ParseResult, error)
}

// registry is the closed set of supported protocols (spec.md §6's
// protocol field table), indexed by name.
var registry = map[string]Protocol{}

func register(p Protocol) { registry[p.Name()] = p }

// Lookup returns the Protocol registered under name, or an
// errors.KindUnsupportedProtocol error.
func Lookup(name string) (Protocol, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errors.Errorf(errors.KindUnsupportedProtocol, "protocols: no parser registered for %q", name)
	}
	return p, nil
}

// ParseClause parses every protocol entry in a policy's Protocols map,
// merging all fragments into one ParseResult. A clause naming a protocol
// with no registered parser is skipped with a warning rather than
// aborting the whole policy; the caller is responsible for falling the
// policy back to accept-all for its direction when the result ends up
// empty.
func ParseClause(clauses map[string]profile.ProtocolClause, backward bool, initiator string) (ParseResult, error) {
	var out ParseResult
	for name, clause := range clauses {
		p, err := Lookup(name)
		if err != nil {
			logging.WithComponent("protocols").Warn("skipping clause for unsupported protocol", "protocol", name)
			continue
		}
		res, err := p.Parse(clause, backward, initiator)
		if err != nil {
			return out, errors.Wrapf(err, errors.KindParse, "protocols: parsing %q clause", name)
		}
		out.merge(res)
	}
	return out, nil
}

// --- shared helpers ----------------------------------------------------

// swap returns bwd when backward is true, otherwise fwd.
func swap(backward bool, fwd, bwd string) string {
	if backward {
		return bwd
	}
	return fwd
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = asString(e)
		}
		return out
	case []string:
		return t
	default:
		return []string{asString(v)}
	}
}

func upperUnderscore(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}

// disjunction joins alternative nft match values for the same field into
// an nftables set literal, e.g. "{ 80, 443 }".
func disjunction(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	return "{ " + strings.Join(values, ", ") + " }"
}
