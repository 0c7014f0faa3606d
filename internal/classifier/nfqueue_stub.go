// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package classifier

import (
	"context"

	"grimm.is/flywall/internal/errors"
)

// OpenQueue is unavailable off Linux: nfqueue is a Netfilter facility.
func OpenQueue(queueNum int) (QueueReader, error) {
	return nil, errors.New(errors.KindUnavailable, "classifier: nfqueue is only available on linux")
}

type stubQueueReader struct{}

func (stubQueueReader) Run(ctx context.Context, handle func(id uint32, raw []byte)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stubQueueReader) SetVerdict(id uint32, accept bool) error { return nil }
func (stubQueueReader) Close() error                            { return nil }
