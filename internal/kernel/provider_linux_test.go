// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/testutil"
)

// TestLinuxKernel_AddBlockRoundTrip exercises the real netlink/nftables
// path; it needs a "flywall" table with a blocklist set already present
// in the kernel, so it only runs under FLYWALL_VM_TEST.
func TestLinuxKernel_AddBlockRoundTrip(t *testing.T) {
	testutil.RequireVM(t)

	k := NewLinuxKernel("flywall")
	const ip = "203.0.113.42"

	require.NoError(t, k.AddBlock(ip))
	assert.True(t, k.IsBlocked(ip))

	require.NoError(t, k.RemoveBlock(ip))
	assert.False(t, k.IsBlocked(ip))
}
