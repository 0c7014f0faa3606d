// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/flywall/internal/errors"
)

// NFLogCaptureLog writes the kernel-log CSV that --log-type=pcap
// produces: every packet an nftables "log group G" rule captures,
// before the kernel decides that rule's final accept/queue verdict.
// Unlike the csv log type's "log prefix" text, a captured packet
// carries no policy name, so every row is written as a pending QUEUE
// verdict for the reconciliation pipeline's Merge to pair against the
// matching classifier-log row by hash and timestamp.
type NFLogCaptureLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	nextID atomic.Uint64
}

// NewNFLogCaptureLog opens (creating if needed) a kernel log CSV at path.
func NewNFLogCaptureLog(path string) (*NFLogCaptureLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "classifier: opening nflog capture log")
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "hash", "timestamp", "policy", "verdict"}); err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.KindUnavailable, "classifier: writing nflog capture log header")
	}
	w.Flush()
	return &NFLogCaptureLog{file: f, writer: w}, nil
}

func (l *NFLogCaptureLog) Write(raw []byte, seen time.Time) {
	id := l.nextID.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write([]string{
		fmt.Sprintf("%d", id),
		PacketHash(raw),
		fmt.Sprintf("%f", float64(seen.UnixNano())/1e9),
		"",
		"QUEUE",
	})
	l.writer.Flush()
}

// Close flushes and closes the underlying file.
func (l *NFLogCaptureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}

// RunNFLogCapture drives an NFLogReader until ctx is canceled, writing
// every captured packet to log.
func RunNFLogCapture(ctx context.Context, reader *NFLogReader, log *NFLogCaptureLog) error {
	return reader.Run(ctx, func(raw []byte, seen time.Time) {
		log.Write(raw, seen)
	})
}
