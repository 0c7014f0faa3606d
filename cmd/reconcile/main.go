// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command reconcile drives the offline verdict-reconciliation
// pipeline: merge a device's kernel and classifier logs, then link
// the merged log to the device's profile to compute each packet's
// expected verdict (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/profile"
	"grimm.is/flywall/internal/reconcile"
)

func main() {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	profilePath := fs.String("profile", "", "path to the device's YAML profile")
	kernelPath := fs.String("kernel-log", "", "path to the kernel log CSV")
	classifierPath := fs.String("classifier-log", "", "path to the classifier log CSV")
	groundTruthPath := fs.String("ground-truth", "", "path to the ground-truth log CSV")
	editLogPath := fs.String("edit-log", "", "path to the packet-edit trace CSV (optional)")
	mergedOut := fs.String("merged-out", "", "where to write the merged log CSV (optional)")
	finalOut := fs.String("final-out", "", "where to write the final log CSV (default: stdout)")
	fs.Parse(os.Args[1:])

	// runID correlates every log line emitted by one invocation; unlike
	// the CSV logs' monotonic per-file row ids, it has no ordering
	// meaning and exists purely to group a run's messages together.
	runID := uuid.NewString()
	log := logging.WithComponent("reconcile").WithFields(map[string]any{"run_id": runID})

	if *profilePath == "" || *kernelPath == "" || *classifierPath == "" || *groundTruthPath == "" {
		fmt.Fprintln(os.Stderr, "usage: reconcile -profile=<path> -kernel-log=<path> -classifier-log=<path> -ground-truth=<path> [-edit-log=<path>] [-merged-out=<path>] [-final-out=<path>]")
		os.Exit(2)
	}

	prof, err := profile.Load(*profilePath)
	if err != nil {
		log.WithError(err).Error("failed to load profile")
		os.Exit(1)
	}

	kernelRows, err := readRows(*kernelPath)
	if err != nil {
		log.WithError(err).Error("failed to read kernel log")
		os.Exit(1)
	}
	classifierRows, err := readRows(*classifierPath)
	if err != nil {
		log.WithError(err).Error("failed to read classifier log")
		os.Exit(1)
	}
	groundTruth, err := readRows(*groundTruthPath)
	if err != nil {
		log.WithError(err).Error("failed to read ground-truth log")
		os.Exit(1)
	}

	var edits []reconcile.EditRecord
	if *editLogPath != "" {
		edits, err = readEditLog(*editLogPath)
		if err != nil {
			log.WithError(err).Error("failed to read edit log")
			os.Exit(1)
		}
	}

	merged := reconcile.Merge(kernelRows, classifierRows, groundTruth)

	if *mergedOut != "" {
		if err := writeRows(*mergedOut, merged); err != nil {
			log.WithError(err).Error("failed to write merged log")
			os.Exit(1)
		}
	}

	final := reconcile.Link(merged, groundTruth, edits, prof)

	out := os.Stdout
	if *finalOut != "" {
		f, err := os.Create(*finalOut)
		if err != nil {
			log.WithError(err).Error("failed to open final log output")
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := reconcile.WriteFinalRows(out, final); err != nil {
		log.WithError(err).Error("failed to write final log")
		os.Exit(1)
	}
}

func readRows(path string) ([]reconcile.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reconcile.ReadRows(f)
}

func readEditLog(path string) ([]reconcile.EditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reconcile.ReadEditLog(f)
}

func writeRows(path string, rows []reconcile.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return reconcile.WriteRows(f, rows)
}
