// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"grimm.is/flywall/internal/errors"
)

// VerdictLog receives one row per packet a worker decides a verdict
// for, in the "Classifier log CSV" format (spec.md §6:
// id,hash,timestamp,policy,verdict). This is the userspace half of the
// log pair the offline reconcile package merges against the kernel's
// own log.
type VerdictLog interface {
	Write(hash string, timestamp float64, policy string, accept bool)
}

// PacketHash derives the log's "hash" column from a raw packet's
// bytes, giving the offline merge stage a stable join key between the
// kernel and classifier logs for the same wire packet.
func PacketHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum[:8])
}

// CSVVerdictLog writes the classifier log CSV to a file, assigning
// each row a monotonic per-file id (spec.md §6: "id assigned as a
// monotonic per-file counter").
type CSVVerdictLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	nextID atomic.Uint64
}

// NewCSVVerdictLog opens (creating if needed) a classifier log CSV at path.
func NewCSVVerdictLog(path string) (*CSVVerdictLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "classifier: opening verdict log")
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "hash", "timestamp", "policy", "verdict"}); err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.KindUnavailable, "classifier: writing verdict log header")
	}
	w.Flush()
	return &CSVVerdictLog{file: f, writer: w}, nil
}

func (l *CSVVerdictLog) Write(hash string, timestamp float64, policy string, accept bool) {
	verdict := "DROP"
	if accept {
		verdict = "ACCEPT"
	}
	id := l.nextID.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write([]string{
		fmt.Sprintf("%d", id),
		hash,
		fmt.Sprintf("%f", timestamp),
		policy,
		verdict,
	})
	l.writer.Flush()
}

// Close flushes and closes the underlying file.
func (l *CSVVerdictLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
