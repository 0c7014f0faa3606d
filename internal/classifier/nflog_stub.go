// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package classifier

import (
	"context"
	"time"

	"grimm.is/flywall/internal/errors"
)

// NFLogReader is the non-Linux placeholder; see nflog_linux.go.
type NFLogReader struct{}

// OpenNFLog is unavailable off Linux: nflog is a Netfilter facility.
func OpenNFLog(group uint16) (*NFLogReader, error) {
	return nil, errors.New(errors.KindUnavailable, "classifier: nflog is only available on linux")
}

func (r *NFLogReader) Run(ctx context.Context, handle func(raw []byte, seen time.Time)) error {
	return errors.New(errors.KindUnavailable, "classifier: nflog is only available on linux")
}

func (r *NFLogReader) Close() error { return nil }
