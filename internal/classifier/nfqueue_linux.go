// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package classifier

import (
	"context"

	"github.com/florianl/go-nfqueue/v2"

	"grimm.is/flywall/internal/errors"
)

// nfQueueReader is the production QueueReader, backed by a real nfqueue
// netlink socket bound to one queue number.
type nfQueueReader struct {
	nf *nfqueue.Nfqueue
}

// OpenQueue binds to queueNum, ready to receive packets the kernel
// ruleset sent to "queue num <queueNum>".
func OpenQueue(queueNum int) (QueueReader, error) {
	cfg := nfqueue.Config{
		NfQueue:      uint16(queueNum),
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  0xFF,
		Copymode:     nfqueue.NfQnlCopyPacket,
	}
	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "classifier: opening nfqueue %d", queueNum)
	}
	return &nfQueueReader{nf: nf}, nil
}

func (r *nfQueueReader) Run(ctx context.Context, handle func(id uint32, raw []byte)) error {
	fn := func(a nfqueue.Attribute) int {
		if a.PacketID == nil || a.Payload == nil {
			return 0
		}
		handle(*a.PacketID, *a.Payload)
		return 0
	}
	errFn := func(e error) int { return 0 }
	return r.nf.RegisterWithErrorFunc(ctx, fn, errFn)
}

func (r *nfQueueReader) SetVerdict(id uint32, accept bool) error {
	if accept {
		return r.nf.SetVerdict(id, nfqueue.NfAccept)
	}
	return r.nf.SetVerdict(id, nfqueue.NfDrop)
}

func (r *nfQueueReader) Close() error {
	return r.nf.Close()
}
