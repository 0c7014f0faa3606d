// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command translate compiles a device's YAML profile into its kernel
// ruleset and classifier configuration (spec.md §4.3, §6).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"grimm.is/flywall/internal/compiler"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/profile"
)

func main() {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	logType := fs.String("log-type", "none", "kernel log directive: none, csv, or pcap")
	logGroup := fs.Int("log-group", 0, "nflog group number, used when -log-type != none")
	table := fs.String("table", "flywall", "nftables table name")
	test := fs.Bool("test", false, "print the classifier configuration as JSON alongside the ruleset")
	expand := fs.String("expand", "", "print the include- and self-resolved profile instead of compiling it")
	fs.Parse(os.Args[1:])

	logging.SetDefault(logging.New(logging.DefaultConfig()))

	if *expand != "" {
		out, err := profile.Expand(*expand)
		if err != nil {
			logging.Default().WithError(err).Error("failed to expand profile")
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	args := fs.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: translate <profile-path> <queue-base> [--log-type=none|csv|pcap] [--log-group=N] [--test]")
		os.Exit(2)
	}
	// Flags may also follow the two positional arguments, as in the usage line.
	fs.Parse(args[2:])
	profilePath := args[0]
	queueBase, err := parseQueueBase(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	prof, err := profile.Load(profilePath)
	if err != nil {
		logging.Default().WithError(err).Error("failed to load profile", "path", profilePath)
		os.Exit(1)
	}

	rs, err := compiler.Compile(prof, compiler.Options{
		Table:     *table,
		QueueBase: queueBase,
		LogType:   *logType,
		LogGroup:  *logGroup,
	})
	if err != nil {
		logging.Default().WithError(err).Error("failed to compile profile", "path", profilePath)
		os.Exit(1)
	}

	fmt.Print(rs.Script)

	if *test {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rs); err != nil {
			logging.Default().WithError(err).Error("failed to encode classifier configuration")
			os.Exit(1)
		}
	}
}

func parseQueueBase(s string) (int, error) {
	var base int
	if _, err := fmt.Sscanf(s, "%d", &base); err != nil {
		return 0, fmt.Errorf("translate: invalid queue-base %q: %w", s, err)
	}
	if base < 0 || base > 0xFFFF {
		return 0, fmt.Errorf("translate: queue-base %d out of uint16 range", base)
	}
	return base, nil
}
