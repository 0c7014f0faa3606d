// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reconcile

import (
	"sort"

	"grimm.is/flywall/internal/logging"
)

// Merge zips a kernel log with the classifier's log into a single
// merged log, substituting ground-truth policy names on kernel DROP
// rows (spec.md §6, grounded on original_source's merge-logs.py).
//
// Non-QUEUE kernel rows pass through unchanged, except that a DROP row
// with no policy name gets the ground-truth policy substituted in when
// one is known. QUEUE rows are matched against classifier rows sharing
// the same (hash, timestamp): equal counts zip one-to-one, a single
// kernel row against several classifier rows fans out to one merged
// row per classifier row, and any other mismatch is skipped with a
// warning rather than failing the run.
func Merge(kernelRows, classifierRows, groundTruth []Row) []Row {
	log := logging.WithComponent("reconcile")

	sorted := append([]Row(nil), kernelRows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	classifierSorted := append([]Row(nil), classifierRows...)
	sort.SliceStable(classifierSorted, func(i, j int) bool { return classifierSorted[i].Timestamp < classifierSorted[j].Timestamp })

	var merged []Row
	kernelIdx := 0
	classifierIdx := 0
	for kernelIdx < len(sorted) {
		row := sorted[kernelIdx]

		if row.Verdict != Queue {
			out := row
			if row.Verdict == Drop && row.Policy == "" {
				if gt, ok := groundTruthPolicy(groundTruth, row.ID); ok {
					out.Policy = gt
				}
			}
			merged = append(merged, out)
			kernelIdx++
			continue
		}

		hash, ts := row.Hash, row.Timestamp
		var kernelGroup []Row
		kernelGroup, kernelIdx = collectByHashTimestamp(sorted, hash, ts, kernelIdx)
		var classifierGroup []Row
		classifierGroup, classifierIdx = collectByHashTimestamp(classifierSorted, hash, ts, classifierIdx)

		switch {
		case len(classifierGroup) == 0:
			log.Warn("no classifier row for queued kernel row", "hash", hash, "timestamp", ts)

		case len(kernelGroup) == len(classifierGroup):
			for i := range kernelGroup {
				gt, _ := groundTruthPolicy(groundTruth, kernelGroup[i].ID)
				merged = append(merged, mergeRow(kernelGroup[i], classifierGroup[i], gt))
			}

		case len(kernelGroup) == 1 && len(classifierGroup) > 1:
			gt, _ := groundTruthPolicy(groundTruth, kernelGroup[0].ID)
			for _, c := range classifierGroup {
				merged = append(merged, mergeRow(kernelGroup[0], c, gt))
			}

		default:
			log.Warn("unreconcilable kernel/classifier row counts", "hash", hash,
				"kernel_rows", len(kernelGroup), "classifier_rows", len(classifierGroup))
		}
	}
	return merged
}

// collectByHashTimestamp returns every row at index >= start sharing
// hash and timestamp, plus the index following the last such row. Rows
// are assumed timestamp-sorted, so the scan stops as soon as a later
// timestamp is seen.
func collectByHashTimestamp(rows []Row, hash string, ts float64, start int) ([]Row, int) {
	var acc []Row
	resultIdx := start - 1
	i := start
	for ; i < len(rows); i++ {
		if rows[i].Timestamp > ts {
			break
		}
		if rows[i].Hash == hash && rows[i].Timestamp == ts {
			acc = append(acc, rows[i])
			resultIdx = i
		}
	}
	return acc, resultIdx + 1
}

func groundTruthPolicy(groundTruth []Row, id string) (string, bool) {
	for _, row := range groundTruth {
		if row.ID == id {
			return row.Policy, true
		}
	}
	logging.WithComponent("reconcile").Warn("ground truth row not found", "id", id)
	return "", false
}

// mergeRow folds one kernel row and its matched classifier row into a
// single merged row: the classifier row wins (it carries the real
// verdict and policy), except a DROP is re-labeled with the ground
// truth policy when known, and an empty classifier policy falls back
// to the kernel row's.
func mergeRow(kernelRow, classifierRow Row, groundTruthPolicy string) Row {
	out := classifierRow
	out.ID = kernelRow.ID
	switch {
	case out.Verdict == Drop && groundTruthPolicy != "":
		out.Policy = groundTruthPolicy
	case out.Policy == "":
		out.Policy = kernelRow.Policy
	}
	return out
}
