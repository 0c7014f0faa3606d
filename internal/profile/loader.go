// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/flywall/internal/errors"
)

// selfScopes lists the (parent-key, field-key) pairs eligible for "self"
// substitution, mirroring the reference loader's replace_self_addrs: MAC
// under arp.sha/arp.tha, IPv4/IPv6 under <proto>.src/<proto>.dst.
var selfScopes = map[string][]string{
	"arp":  {"sha", "tha", "spa", "tpa"},
	"ipv4": {"src", "dst"},
	"ipv6": {"src", "dst"},
}

// arpMACFields are the arp fields that resolve "self" to the device's MAC;
// the remaining arp fields in selfScopes (spa/tpa) resolve to its IPv4.
var arpMACFields = map[string]bool{"sha": true, "tha": true}

// Expand reads a device profile document, resolves every !include
// directive and "self" address token, and returns the resulting
// document re-serialized as YAML text, stopping short of the
// interaction-flattening Load performs. This mirrors the reference
// translator's expand.py, which exists purely to let a profile author
// inspect what an !include actually pulled in.
func Expand(path string) (string, error) {
	root, err := parseFile(path)
	if err != nil {
		return "", err
	}
	if err := resolveIncludes(root, path); err != nil {
		return "", err
	}

	doc := documentRoot(root)
	if doc == nil || doc.Kind != yaml.MappingNode {
		return "", errors.New(errors.KindParse, "profile: empty or malformed document")
	}

	devInfoNode := mapGet(doc, "device-info")
	if devInfoNode == nil {
		return "", errors.New(errors.KindParse, "profile: missing device-info block")
	}
	var dev Device
	if err := devInfoNode.Decode(&dev); err != nil {
		return "", errors.Wrap(err, errors.KindParse, "profile: decoding device-info")
	}
	substituteSelf(doc, dev, "")

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, errors.KindParse, "profile: re-serializing expanded document")
	}
	return string(out), nil
}

// Load reads a device profile document, expanding !include directives and
// resolving "self" address tokens, and returns the fully flattened Profile.
func Load(path string) (*Profile, error) {
	root, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := resolveIncludes(root, path); err != nil {
		return nil, err
	}

	doc := documentRoot(root)
	if doc == nil || doc.Kind != yaml.MappingNode {
		return nil, errors.New(errors.KindParse, "profile: empty or malformed document")
	}

	devInfoNode := mapGet(doc, "device-info")
	if devInfoNode == nil {
		return nil, errors.New(errors.KindParse, "profile: missing device-info block")
	}
	var dev Device
	if err := devInfoNode.Decode(&dev); err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "profile: decoding device-info")
	}

	substituteSelf(doc, dev, "")

	prof := &Profile{Device: dev}

	if spNode := mapGet(doc, "single-policies"); spNode != nil {
		names, values := mapPairs(spNode)
		for i, name := range names {
			pol, err := decodePolicyLeaf(name, values[i], "", 0)
			if err != nil {
				return nil, err
			}
			prof.SinglePolicies = append(prof.SinglePolicies, pol...)
		}
	}

	if itNode := mapGet(doc, "interactions"); itNode != nil {
		names, values := mapPairs(itNode)
		for i, name := range names {
			policies, err := flattenInteraction(name, values[i])
			if err != nil {
				return nil, err
			}
			for idx, p := range policies {
				p.Index = idx
			}
			prof.Interactions = append(prof.Interactions, &Interaction{Name: name, Policies: policies})
		}
	}

	return prof, nil
}

func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func parseFile(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "profile: reading "+path)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "profile: parsing "+path)
	}
	return &root, nil
}

// --- include resolution -----------------------------------------------

// resolveIncludes walks node depth-first, replacing every scalar tagged
// "!include" with the included fragment. This is a pure tree-rewrite pass
// over the parsed document, run once before any semantic analysis (see
// spec.md §9's re-architecture note on the include directive).
func resolveIncludes(node *yaml.Node, currentFile string) error {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.DocumentNode {
		for _, c := range node.Content {
			if err := resolveIncludes(c, currentFile); err != nil {
				return err
			}
		}
		return nil
	}

	for i, child := range node.Content {
		if child.Tag == "!include" && child.Kind == yaml.ScalarNode {
			resolved, err := expandInclude(child.Value, currentFile)
			if err != nil {
				return err
			}
			node.Content[i] = resolved
			continue
		}
		if err := resolveIncludes(child, currentFile); err != nil {
			return err
		}
	}
	return nil
}

// expandInclude parses one `!include <path|self>#<dotted.member> [key=value ...]`
// directive: loads the referenced document (without recursively expanding
// its own includes), descends to the dotted member, applies field
// overrides, and resolves "self" within that fragment against the
// referenced document's own device-info.
func expandInclude(directive string, currentFile string) (*yaml.Node, error) {
	fields := strings.Fields(directive)
	if len(fields) == 0 {
		return nil, errors.New(errors.KindParse, "profile: empty !include directive")
	}

	pathAndMember := fields[0]
	overrides := fields[1:]

	var targetPath, member string
	if idx := strings.Index(pathAndMember, "#"); idx >= 0 {
		targetPath = pathAndMember[:idx]
		member = pathAndMember[idx+1:]
	} else {
		targetPath = pathAndMember
	}

	resolvedPath := currentFile
	if targetPath != "" && targetPath != "self" {
		resolvedPath = filepath.Join(filepath.Dir(currentFile), targetPath)
	}

	targetRoot, err := parseFile(resolvedPath)
	if err != nil {
		return nil, err
	}
	targetDoc := documentRoot(targetRoot)

	fragment := targetDoc
	if member != "" {
		for _, segment := range strings.Split(member, ".") {
			fragment = mapGet(fragment, segment)
			if fragment == nil {
				return nil, errors.Errorf(errors.KindParse, "profile: !include member %q not found in %s", member, resolvedPath)
			}
		}
	}
	fragment = deepCopy(fragment)

	for _, ov := range overrides {
		kv := strings.SplitN(ov, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if err := setDotted(fragment, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}

	var dev Device
	if devNode := mapGet(targetDoc, "device-info"); devNode != nil {
		_ = devNode.Decode(&dev)
	}
	substituteSelf(fragment, dev, "")

	return fragment, nil
}

func deepCopy(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		cp.Content[i] = deepCopy(c)
	}
	return &cp
}

// setDotted sets a leaf scalar at a dotted key path within a mapping node,
// e.g. "protocols.ipv4.dst" = "192.0.2.1".
func setDotted(node *yaml.Node, dottedKey string, value string) error {
	segments := strings.Split(dottedKey, ".")
	cur := node
	for i, seg := range segments {
		if cur == nil || cur.Kind != yaml.MappingNode {
			return errors.Errorf(errors.KindParse, "profile: override path %q does not resolve to a mapping", dottedKey)
		}
		if i == len(segments)-1 {
			for j := 0; j < len(cur.Content); j += 2 {
				if cur.Content[j].Value == seg {
					cur.Content[j+1].Kind = yaml.ScalarNode
					cur.Content[j+1].Tag = "!!str"
					cur.Content[j+1].Value = value
					cur.Content[j+1].Content = nil
					return nil
				}
			}
			cur.Content = append(cur.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: seg},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
			return nil
		}
		cur = mapGet(cur, seg)
	}
	return nil
}

// --- self substitution ---------------------------------------------------

// substituteSelf walks node replacing scalar "self" values that sit at one
// of selfScopes' (parentKey, fieldKey) positions with the device's
// corresponding address.
func substituteSelf(node *yaml.Node, dev Device, parentKey string) {
	if node == nil {
		return
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			val := node.Content[i+1]

			if val.Kind == yaml.ScalarNode && val.Value == "self" {
				if replacement, ok := selfReplacement(parentKey, key.Value, dev); ok {
					val.Value = replacement
					continue
				}
			}
			substituteSelf(val, dev, key.Value)
		}
		return
	}
	for _, c := range node.Content {
		substituteSelf(c, dev, parentKey)
	}
}

func selfReplacement(parentKey, fieldKey string, dev Device) (string, bool) {
	fields, ok := selfScopes[parentKey]
	if !ok {
		return "", false
	}
	matched := false
	for _, f := range fields {
		if f == fieldKey {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}
	switch parentKey {
	case "arp":
		if arpMACFields[fieldKey] {
			if dev.MAC == "" {
				return "", false
			}
			return dev.MAC, true
		}
		if dev.IPv4 == "" {
			return "", false
		}
		return dev.IPv4, true
	case "ipv4":
		if dev.IPv4 == "" {
			return "", false
		}
		return dev.IPv4, true
	case "ipv6":
		if dev.IPv6 == "" {
			return "", false
		}
		return dev.IPv6, true
	}
	return "", false
}

// --- node helpers ----------------------------------------------------

func mapGet(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// mapPairs returns a mapping node's keys and value nodes in document
// order; order here is semantically significant (spec.md §4.1).
func mapPairs(node *yaml.Node) ([]string, []*yaml.Node) {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil, nil
	}
	var keys []string
	var values []*yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
		values = append(values, node.Content[i+1])
	}
	return keys, values
}

// policyKeys are the fields that mark a mapping node as a leaf policy
// rather than a grouping of nested sub-policies.
var policyKeys = map[string]bool{
	"protocols": true, "stats": true, "bidirectional": true,
	"initiator": true, "timeout": true, "activity-period": true,
}

func isLeafPolicy(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if policyKeys[node.Content[i].Value] {
			return true
		}
	}
	return false
}

// flattenInteraction recursively flattens an interaction's (possibly
// nested) policy map into an ordered sequence, inserting a synthetic
// "-backward" sibling immediately after every bidirectional entry.
func flattenInteraction(interactionName string, node *yaml.Node) ([]*Policy, error) {
	if node == nil {
		return nil, nil
	}
	if isLeafPolicy(node) {
		return decodePolicyLeaf("", node, interactionName, 0)
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.Errorf(errors.KindParse, "profile: interaction %q has a non-mapping node", interactionName)
	}

	var out []*Policy
	names, values := mapPairs(node)
	for i, name := range names {
		if isLeafPolicy(values[i]) {
			pols, err := decodePolicyLeaf(name, values[i], interactionName, 0)
			if err != nil {
				return nil, err
			}
			out = append(out, pols...)
		} else {
			nested, err := flattenInteraction(interactionName, values[i])
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

// rawPolicy is the YAML shape of a single leaf policy node.
type rawPolicy struct {
	Protocols      map[string]map[string]any `yaml:"protocols"`
	Stats          map[string]any            `yaml:"stats"`
	Bidirectional  bool                       `yaml:"bidirectional"`
	Initiator      string                     `yaml:"initiator"`
	Timeout        string                     `yaml:"timeout"`
	ActivityPeriod string                     `yaml:"activity-period"`
}

// decodePolicyLeaf decodes one leaf policy node into a forward Policy, and
// its "-backward" sibling if bidirectional.
func decodePolicyLeaf(name string, node *yaml.Node, interaction string, index int) ([]*Policy, error) {
	var raw rawPolicy
	if err := node.Decode(&raw); err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "profile: decoding policy %q", name)
	}

	stats, err := parseStats(raw.Stats)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "profile: stats for policy %q", name)
	}

	timeout, err := parseOptionalDuration(raw.Timeout)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "profile: timeout for policy %q", name)
	}

	clauses := make(map[string]ProtocolClause, len(raw.Protocols))
	for proto, fields := range raw.Protocols {
		clause := make(ProtocolClause, len(fields))
		for k, v := range fields {
			clause[k] = v
		}
		clauses[proto] = clause
	}

	fwd := &Policy{
		Name:           name,
		Interaction:    interaction,
		Direction:      Forward,
		Bidirectional:  raw.Bidirectional,
		Kind:           classifyKind(stats),
		Initiator:      raw.Initiator,
		Protocols:      clauses,
		Stats:          stats,
		Timeout:        timeout,
		ActivityPeriod: raw.ActivityPeriod,
	}

	out := []*Policy{fwd}
	if raw.Bidirectional {
		bwd := *fwd
		bwd.Name = name + "-backward"
		bwd.Direction = Backward
		out = append(out, &bwd)
	}
	return out, nil
}

func classifyKind(s Stats) Kind {
	if s.Count != nil || s.Duration != nil {
		return Transient
	}
	if s.Rate != nil {
		return Periodic
	}
	return OneOff
}

// --- stats parsing -----------------------------------------------------

var rateUnitSeconds = map[string]float64{
	"second": 1, "seconds": 1,
	"minute": 60, "minutes": 60,
	"hour": 3600, "hours": 3600,
	"day": 86400, "days": 86400,
}

func parseStats(raw map[string]any) (Stats, error) {
	var s Stats
	if raw == nil {
		return s, nil
	}
	if v, ok := raw["rate"]; ok {
		r, err := parseRate(fmt.Sprint(v))
		if err != nil {
			return s, err
		}
		s.Rate = r
	}
	if v, ok := raw["packet-size"]; ok {
		sz, err := parseSize(fmt.Sprint(v))
		if err != nil {
			return s, err
		}
		s.Size = sz
	}
	if v, ok := raw["packet-count"]; ok {
		c, err := parseDirectionalInt(v)
		if err != nil {
			return s, err
		}
		s.Count = c
	}
	if v, ok := raw["duration"]; ok {
		d, err := parseDirectionalDuration(v)
		if err != nil {
			return s, err
		}
		s.Duration = d
	}
	return s, nil
}

// parseRate parses "N/unit" or "N/unit burst B packets|bytes", normalizing
// N to packets/second. Burst's declared unit is preserved unchanged (see
// SPEC_FULL.md's recorded decision on the rate-aggregation open question).
func parseRate(s string) (*RateStat, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil, nil
	}

	var ratePart, burstPart string
	if idx := strings.Index(s, " burst "); idx >= 0 {
		ratePart = s[:idx]
		burstPart = strings.TrimSpace(s[idx+len(" burst "):])
	} else {
		ratePart = s
	}

	rateFields := strings.SplitN(ratePart, "/", 2)
	if len(rateFields) != 2 {
		return nil, errors.Errorf(errors.KindParse, "invalid rate %q", s)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(rateFields[0]), 64)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "invalid rate amount %q", s)
	}
	unitSeconds, ok := rateUnitSeconds[strings.TrimSpace(rateFields[1])]
	if !ok {
		return nil, errors.Errorf(errors.KindParse, "unknown rate unit in %q", s)
	}

	rs := &RateStat{PerSecond: amount / unitSeconds, Burst: int(amount), BurstUnit: "packets"}

	if burstPart != "" {
		fields := strings.Fields(burstPart)
		if len(fields) >= 1 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				rs.Burst = n
			}
		}
		if len(fields) >= 2 {
			rs.BurstUnit = fields[1]
		}
	}
	return rs, nil
}

// parseSize parses "< N" (upper bound, lower 0) or "N - M" (inclusive range).
func parseSize(s string) (*SizeStat, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		n, err := strconv.Atoi(strings.TrimSpace(s[1:]))
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindParse, "invalid packet-size %q", s)
		}
		return &SizeStat{Lower: 0, Upper: n}, nil
	}
	if idx := strings.Index(s, "-"); idx >= 0 {
		lowerStr := strings.TrimSpace(s[:idx])
		upperStr := strings.TrimSpace(s[idx+1:])
		lower, err1 := strconv.Atoi(lowerStr)
		upper, err2 := strconv.Atoi(upperStr)
		if err1 != nil || err2 != nil {
			return nil, errors.Errorf(errors.KindParse, "invalid packet-size range %q", s)
		}
		return &SizeStat{Lower: lower, Upper: upper}, nil
	}
	return nil, errors.Errorf(errors.KindParse, "invalid packet-size %q", s)
}

func parseDirectionalInt(v any) (*DirectionalCount, error) {
	switch t := v.(type) {
	case map[string]any:
		dc := &DirectionalCount{}
		if fv, ok := t["fwd"]; ok {
			n := toInt(fv)
			dc.Forward = &n
		}
		if bv, ok := t["bwd"]; ok {
			n := toInt(bv)
			dc.Backward = &n
		}
		return dc, nil
	default:
		n := toInt(v)
		return &DirectionalCount{Default: &n}, nil
	}
}

func parseDirectionalDuration(v any) (*DirectionalDuration, error) {
	switch t := v.(type) {
	case map[string]any:
		dd := &DirectionalDuration{}
		if fv, ok := t["fwd"]; ok {
			d, err := parseOptionalDuration(fmt.Sprint(fv))
			if err != nil {
				return nil, err
			}
			dd.Forward = &d
		}
		if bv, ok := t["bwd"]; ok {
			d, err := parseOptionalDuration(fmt.Sprint(bv))
			if err != nil {
				return nil, err
			}
			dd.Backward = &d
		}
		return dd, nil
	default:
		d, err := parseOptionalDuration(fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		return &DirectionalDuration{Default: &d}, nil
	}
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindParse, "invalid duration %q", s)
	}
	return d, nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
