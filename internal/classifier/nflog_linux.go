// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package classifier

import (
	"context"
	"time"

	nflog "github.com/florianl/go-nflog/v2"

	"grimm.is/flywall/internal/errors"
)

// NFLogReader captures packets logged by an nftables "log group G" rule,
// the debug log stream --log-type=pcap selects instead of the csv
// type's prefixed log lines. It carries no policy name or verdict of
// its own, only the raw packet and when it was seen; the reconciliation
// pipeline correlates captured packets against the classifier log by
// hash and timestamp the same way it does for the csv kernel log.
type NFLogReader struct {
	nf *nflog.Nflog
}

// OpenNFLog binds to the nflog group an nftables "log group <group>"
// rule writes to.
func OpenNFLog(group uint16) (*NFLogReader, error) {
	cfg := nflog.Config{
		Group:    group,
		Copymode: nflog.NfUlnlCopyPacket,
		ReBind:   true,
	}
	nf, err := nflog.Open(&cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "classifier: opening nflog group %d", group)
	}
	return &NFLogReader{nf: nf}, nil
}

// Run blocks, invoking handle for every captured packet until ctx is
// canceled or the nflog socket errors out.
func (r *NFLogReader) Run(ctx context.Context, handle func(raw []byte, seen time.Time)) error {
	fn := func(a nflog.Attribute) int {
		if a.Payload == nil {
			return 0
		}
		seen := time.Now()
		if a.Timestamp != nil {
			seen = *a.Timestamp
		}
		handle(*a.Payload, seen)
		return 0
	}
	errFn := func(e error) int { return 0 }
	return r.nf.RegisterWithErrorFunc(ctx, fn, errFn)
}

// Close releases the nflog socket.
func (r *NFLogReader) Close() error {
	return r.nf.Close()
}
