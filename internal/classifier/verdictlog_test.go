// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketHash_IsStableForIdenticalBytes(t *testing.T) {
	a := PacketHash([]byte("hello"))
	b := PacketHash([]byte("hello"))
	assert.Equal(t, a, b)
}

func TestPacketHash_DiffersForDifferentBytes(t *testing.T) {
	a := PacketHash([]byte("hello"))
	b := PacketHash([]byte("world"))
	assert.NotEqual(t, a, b)
}

func TestCSVVerdictLog_AssignsMonotonicIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdicts.csv")
	log, err := NewCSVVerdictLog(path)
	require.NoError(t, err)
	log.Write("h1", 1.0, "single#query", true)
	log.Write("h2", 2.0, "single#query", false)
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "hash", "timestamp", "policy", "verdict"}, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "ACCEPT", records[1][4])
	assert.Equal(t, "2", records[2][0])
	assert.Equal(t, "DROP", records[2][4])
}
