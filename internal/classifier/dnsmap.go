// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"strings"
	"sync"
	"time"
)

// DNSMap records domain-name -> resolved-IP bindings observed in DNS/mDNS
// responses, so a later packet matching a policy's domain-name clause
// can be checked against the addresses previously resolved for that name
// (the DNS-map half of spec.md §4.4's "domain name or cached IP"
// disjunction; the per-interaction cached IP lives on InteractionState).
// One map is shared by every interaction of a Classifier, and its entries
// stay until Expire drops them.
type DNSMap struct {
	mu      sync.RWMutex
	entries map[string][]cachedIP
}

type cachedIP struct {
	addr string
	seen time.Time
}

// NewDNSMap returns an empty map.
func NewDNSMap() *DNSMap {
	return &DNSMap{entries: make(map[string][]cachedIP)}
}

// Record binds domain to addr, as observed in a DNS/mDNS answer.
func (m *DNSMap) Record(domain, addr string) {
	domain = strings.ToLower(domain)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[domain] {
		if e.addr == addr {
			return
		}
	}
	m.entries[domain] = append(m.entries[domain], cachedIP{addr: addr, seen: time.Now()})
}

// Contains reports whether addr was ever observed bound to domain.
func (m *DNSMap) Contains(domain, addr string) bool {
	domain = strings.ToLower(domain)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries[domain] {
		if e.addr == addr {
			return true
		}
	}
	return false
}

// ContainsSuffix reports whether addr was observed bound to any domain
// ending in suffix (the "$name" wildcard form).
func (m *DNSMap) ContainsSuffix(suffix, addr string) bool {
	suffix = strings.ToLower(suffix)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for domain, entries := range m.entries {
		if !strings.HasSuffix(domain, suffix) {
			continue
		}
		for _, e := range entries {
			if e.addr == addr {
				return true
			}
		}
	}
	return false
}

// Expire drops cached bindings older than maxAge.
func (m *DNSMap) Expire(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	for domain, entries := range m.entries {
		kept := entries[:0]
		for _, e := range entries {
			if e.seen.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(m.entries, domain)
		} else {
			m.entries[domain] = kept
		}
	}
}
