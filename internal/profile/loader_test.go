// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_SinglePoliciesAndSelfSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "phone.yaml", `
device-info:
  name: phone
  mac: aa:bb:cc:dd:ee:ff
  ipv4: 192.168.1.50

single-policies:
  arp-heartbeat:
    protocols:
      arp:
        type: request
        spa: self
    stats:
      rate: "1/second"
`)

	prof, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "phone", prof.Device.Name)
	require.Len(t, prof.SinglePolicies, 1)

	pol := prof.SinglePolicies[0]
	assert.Equal(t, "arp-heartbeat", pol.Name)
	assert.Equal(t, Periodic, pol.Kind)
	assert.Equal(t, "192.168.1.50", pol.Protocols["arp"]["spa"])
}

func TestLoad_BidirectionalPolicyGetsBackwardSibling(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "phone.yaml", `
device-info:
  name: phone
  mac: aa:bb:cc:dd:ee:ff

interactions:
  dns-then-https:
    query:
      bidirectional: true
      protocols:
        dns:
          domain-name: example.com
    connect:
      protocols:
        tcp:
          dst-port: "443"
`)

	prof, err := Load(path)
	require.NoError(t, err)
	require.Len(t, prof.Interactions, 1)

	policies := prof.Interactions[0].Policies
	require.Len(t, policies, 3, "bidirectional query expands to forward+backward, plus connect")
	assert.Equal(t, "query", policies[0].Name)
	assert.Equal(t, Forward, policies[0].Direction)
	assert.Equal(t, "query-backward", policies[1].Name)
	assert.Equal(t, Backward, policies[1].Direction)
	assert.Equal(t, "connect", policies[2].Name)

	for i, p := range policies {
		assert.Equal(t, i, p.Index)
	}
}

func TestLoad_IncludeDirectivePullsInFragment(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "common.yaml", `
device-info:
  name: template
  mac: 00:00:00:00:00:00

shared-policies:
  dns-query:
    protocols:
      dns:
        domain-name: example.com
`)
	path := writeTempFile(t, dir, "phone.yaml", `
device-info:
  name: phone
  mac: aa:bb:cc:dd:ee:ff

single-policies:
  query: !include common.yaml#shared-policies.dns-query
`)

	prof, err := Load(path)
	require.NoError(t, err)
	require.Len(t, prof.SinglePolicies, 1)
	assert.Equal(t, "example.com", prof.SinglePolicies[0].Protocols["dns"]["domain-name"])
}

func TestLoad_MissingDeviceInfoErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "bad.yaml", `
single-policies: {}
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpand_ResolvesIncludeButNotInteractions(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "common.yaml", `
device-info:
  name: template
  mac: 00:00:00:00:00:00

shared-policies:
  dns-query:
    protocols:
      dns:
        domain-name: example.com
`)
	path := writeTempFile(t, dir, "phone.yaml", `
device-info:
  name: phone
  mac: aa:bb:cc:dd:ee:ff

single-policies:
  query: !include common.yaml#shared-policies.dns-query
`)

	out, err := Expand(path)
	require.NoError(t, err)
	assert.Contains(t, out, "example.com")
	assert.NotContains(t, out, "!include")
}

func TestParseRate_NormalizesToPacketsPerSecond(t *testing.T) {
	r, err := parseRate("60/minute")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.PerSecond)
	assert.Equal(t, 60, r.Burst)
	assert.Equal(t, "packets", r.BurstUnit)
}

func TestParseRate_WithExplicitBurst(t *testing.T) {
	r, err := parseRate("10/second burst 5 bytes")
	require.NoError(t, err)
	assert.Equal(t, 10.0, r.PerSecond)
	assert.Equal(t, 5, r.Burst)
	assert.Equal(t, "bytes", r.BurstUnit)
}

func TestParseRate_ZeroIsNilRate(t *testing.T) {
	r, err := parseRate("0")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestParseSize_UpperBoundOnly(t *testing.T) {
	s, err := parseSize("< 128")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Lower)
	assert.Equal(t, 128, s.Upper)
}

func TestParseSize_InclusiveRange(t *testing.T) {
	s, err := parseSize("64 - 1500")
	require.NoError(t, err)
	assert.Equal(t, 64, s.Lower)
	assert.Equal(t, 1500, s.Upper)
}

func TestParseOptionalDuration_EmptyIsZero(t *testing.T) {
	d, err := parseOptionalDuration("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)
}

func TestClassifyKind_CountOrDurationIsTransient(t *testing.T) {
	n := 5
	assert.Equal(t, Transient, classifyKind(Stats{Count: &DirectionalCount{Default: &n}}))
}

func TestClassifyKind_RateWithoutCountIsPeriodic(t *testing.T) {
	assert.Equal(t, Periodic, classifyKind(Stats{Rate: &RateStat{PerSecond: 1}}))
}

func TestClassifyKind_NoStatsIsOneOff(t *testing.T) {
	assert.Equal(t, OneOff, classifyKind(Stats{}))
}
