// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDNSMap_RecordAndContains(t *testing.T) {
	m := NewDNSMap()
	m.Record("Example.com", "1.2.3.4")
	assert.True(t, m.Contains("example.com", "1.2.3.4"), "domain lookups are case-insensitive")
	assert.False(t, m.Contains("example.com", "5.6.7.8"))
}

func TestDNSMap_ContainsSuffixMatchesSubdomain(t *testing.T) {
	m := NewDNSMap()
	m.Record("api.example.com", "1.2.3.4")
	assert.True(t, m.ContainsSuffix("example.com", "1.2.3.4"))
	assert.False(t, m.ContainsSuffix("other.com", "1.2.3.4"))
}

func TestDNSMap_DuplicateRecordIsNotDoubled(t *testing.T) {
	m := NewDNSMap()
	m.Record("example.com", "1.2.3.4")
	m.Record("example.com", "1.2.3.4")
	assert.Len(t, m.entries["example.com"], 1)
}

func TestDNSMap_Expire_DropsOldEntries(t *testing.T) {
	m := NewDNSMap()
	m.Record("example.com", "1.2.3.4")
	m.Expire(0)
	assert.False(t, m.Contains("example.com", "1.2.3.4"))
}
