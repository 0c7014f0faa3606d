// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package reconcile is the offline verdict-reconciliation pipeline: it
// merges the kernel's per-packet log with the classifier's per-packet
// verdict log, then walks each packet's interaction backwards to decide
// the verdict the profile should have produced (spec.md §6).
package reconcile

import (
	"encoding/csv"
	"io"
	"strconv"

	"grimm.is/flywall/internal/errors"
)

// Verdict is the ACCEPT/DROP/QUEUE value carried by a log row.
type Verdict string

const (
	Accept Verdict = "ACCEPT"
	Drop   Verdict = "DROP"
	Queue  Verdict = "QUEUE"
)

// Reason explains how a final row's expected verdict was derived.
type Reason string

const (
	ReasonGroundTruth Reason = "GROUND_TRUTH"
	ReasonEdited      Reason = "EDITED"
	ReasonInteraction Reason = "INTERACTION"
)

// LogColumns is the shared column order of the kernel, classifier, and
// merged log CSVs (spec.md §6).
var LogColumns = []string{"id", "hash", "timestamp", "policy", "verdict"}

// Row is one packet entry in a kernel, classifier, ground-truth, or
// merged log. Timestamp is kept both as its original string (for
// lossless round-trip through the merged/final CSV) and as a float64
// for ordering and equality comparisons.
type Row struct {
	ID         string
	Hash       string
	Timestamp  float64
	TimestampS string
	Policy     string
	Verdict    Verdict
}

// ReadRows reads a kernel/classifier/ground-truth/merged log CSV.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "reconcile: reading log CSV")
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	idx := columnIndex(header)
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row, err := rowFromRecord(rec, idx)
		if err != nil {
			logging.WithComponent("reconcile").WithError(err).Warn("skipping malformed log row")
			continue // malformed rows are skipped with a warning, never fatal
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type columnSet struct {
	id, hash, timestamp, policy, verdict int
}

func columnIndex(header []string) columnSet {
	idx := columnSet{id: -1, hash: -1, timestamp: -1, policy: -1, verdict: -1}
	for i, name := range header {
		switch name {
		case "id":
			idx.id = i
		case "hash":
			idx.hash = i
		case "timestamp":
			idx.timestamp = i
		case "policy":
			idx.policy = i
		case "verdict":
			idx.verdict = i
		}
	}
	return idx
}

func rowFromRecord(rec []string, idx columnSet) (Row, error) {
	if idx.id < 0 || idx.hash < 0 || idx.timestamp < 0 || idx.verdict < 0 {
		return Row{}, errors.New(errors.KindReconciliationMismatch, "reconcile: missing required column")
	}
	ts, err := strconv.ParseFloat(rec[idx.timestamp], 64)
	if err != nil {
		return Row{}, errors.Wrap(err, errors.KindReconciliationMismatch, "reconcile: parsing timestamp")
	}
	row := Row{
		ID:         rec[idx.id],
		Hash:       rec[idx.hash],
		Timestamp:  ts,
		TimestampS: rec[idx.timestamp],
		Verdict:    Verdict(rec[idx.verdict]),
	}
	if idx.policy >= 0 {
		row.Policy = rec[idx.policy]
	}
	return row, nil
}

// WriteRows writes rows back out in the shared log column order.
func WriteRows(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(LogColumns); err != nil {
		return errors.Wrap(err, errors.KindParse, "reconcile: writing log header")
	}
	for _, row := range rows {
		rec := []string{row.ID, row.Hash, row.TimestampS, row.Policy, string(row.Verdict)}
		if err := writer.Write(rec); err != nil {
			return errors.Wrap(err, errors.KindParse, "reconcile: writing log row")
		}
	}
	return nil
}

// EditRecord is one entry from the packet-editing/fuzzing trace
// (out of scope to produce, but its CSV format is this pipeline's
// input): grounded on pcap_tweaker's field_names list.
type EditRecord struct {
	ID        string
	Timestamp string
	Protocol  string
	Field     string
	OldValue  string
	NewValue  string
	OldHash   string
	NewHash   string
}

// ReadEditLog reads the packet-editing trace CSV.
func ReadEditLog(r io.Reader) ([]EditRecord, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "reconcile: reading edit log CSV")
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	pos := map[string]int{}
	for i, name := range header {
		pos[name] = i
	}
	get := func(rec []string, name string) string {
		if i, ok := pos[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	edits := make([]EditRecord, 0, len(records)-1)
	for _, rec := range records[1:] {
		edits = append(edits, EditRecord{
			ID:        get(rec, "id"),
			Timestamp: get(rec, "timestamp"),
			Protocol:  get(rec, "protocol"),
			Field:     get(rec, "field"),
			OldValue:  get(rec, "old_value"),
			NewValue:  get(rec, "new_value"),
			OldHash:   get(rec, "old_hash"),
			NewHash:   get(rec, "new_hash"),
		})
	}
	return edits, nil
}

// FinalRow is a merged row annotated with the expected verdict the
// profile should have produced.
type FinalRow struct {
	Row
	ActualVerdict   Verdict
	ExpectedVerdict Verdict
	Reason          Reason
}

// FinalColumns is the final CSV's column order: merged columns with
// "verdict" renamed to "actual_verdict", plus "expected_verdict"
// (inserted before it) and "reason" (appended).
var FinalColumns = []string{"id", "hash", "timestamp", "policy", "expected_verdict", "actual_verdict", "reason"}

// WriteFinalRows writes the reconciliation pipeline's terminal CSV.
func WriteFinalRows(w io.Writer, rows []FinalRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(FinalColumns); err != nil {
		return errors.Wrap(err, errors.KindParse, "reconcile: writing final log header")
	}
	for _, row := range rows {
		rec := []string{
			row.ID, row.Hash, row.TimestampS, row.Policy,
			string(row.ExpectedVerdict), string(row.ActualVerdict), string(row.Reason),
		}
		if err := writer.Write(rec); err != nil {
			return errors.Wrap(err, errors.KindParse, "reconcile: writing final log row")
		}
	}
	return nil
}
