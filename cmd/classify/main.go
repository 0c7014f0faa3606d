// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command classify is the classifier daemon: for every configured
// device it compiles the device's profile, binds a worker to every
// nfqueue the compiled ruleset assigns, and runs the stateful
// accept/drop loop until asked to shut down (spec.md §4.4, §7).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/flywall/internal/classifier"
	"grimm.is/flywall/internal/compiler"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/kernel"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/metrics"
	"grimm.is/flywall/internal/profile"
)

func main() {
	configPath := flag.String("config", "/etc/flywall/classify.hcl", "path to the daemon's HCL configuration")
	flag.Parse()

	cf, err := config.LoadConfigFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "classify: loading config: %v\n", err)
		os.Exit(1)
	}
	cfg := cf.Config

	logging.SetDefault(logging.New(logging.Config{
		Level: logging.ParseLevel(cfg.LogLevel),
		JSON:  true,
		Syslog: logging.SyslogConfig{
			Enabled: cfg.SyslogHost != "",
			Host:    cfg.SyslogHost,
			Port:    cfg.SyslogPort,
		},
	}))
	log := logging.WithComponent("classify")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.Get()
	kern := kernel.New(cfg.Table)
	collector := metrics.NewCollector(logging.WithComponent("metrics"), 30*time.Second)
	go collector.Start()
	defer collector.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server exited", "addr", cfg.MetricsAddr)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		log.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
	}

	var wg sync.WaitGroup
	for _, dc := range cfg.Devices {
		dc := dc
		prof, err := profile.Load(dc.ProfilePath)
		if err != nil {
			log.WithError(err).Error("failed to load device profile", "device", dc.Name, "path", dc.ProfilePath)
			continue
		}

		rs, err := compiler.Compile(prof, compiler.Options{
			Table:     cfg.Table,
			QueueBase: dc.QueueBase,
			LogType:   cfg.LogType,
			LogGroup:  cfg.LogGroup,
		})
		if err != nil {
			log.WithError(err).Error("failed to compile device profile", "device", dc.Name)
			continue
		}

		class := classifier.New(rs)

		var verdictLog classifier.VerdictLog
		if cfg.LogType == "csv" {
			w, err := classifier.NewCSVVerdictLog(fmt.Sprintf("%s.classifier.csv", dc.Name))
			if err != nil {
				log.WithError(err).Warn("failed to open classifier verdict log", "device", dc.Name)
			} else {
				verdictLog = w
				defer w.Close()
			}
		}

		if cfg.LogType == "pcap" {
			capture, err := classifier.NewNFLogCaptureLog(fmt.Sprintf("%s.kernel.csv", dc.Name))
			if err != nil {
				log.WithError(err).Warn("failed to open nflog capture log", "device", dc.Name)
			} else {
				defer capture.Close()
				reader, err := classifier.OpenNFLog(uint16(cfg.LogGroup))
				if err != nil {
					log.WithError(err).Error("failed to open nflog group", "device", dc.Name, "group", cfg.LogGroup)
				} else {
					wg.Add(1)
					go func() {
						defer wg.Done()
						defer reader.Close()
						if err := classifier.RunNFLogCapture(ctx, reader, capture); err != nil && ctx.Err() == nil {
							log.WithError(err).Error("nflog capture exited", "device", dc.Name, "group", cfg.LogGroup)
						}
					}()
				}
			}
		}

		for _, g := range rs.Groups {
			if g.QueueNum < 0 {
				continue // accepted directly by the kernel ruleset, no worker needed
			}
			reader, err := classifier.OpenQueue(g.QueueNum)
			if err != nil {
				log.WithError(err).Error("failed to open nfqueue", "device", dc.Name, "queue", g.QueueNum)
				continue
			}
			worker := classifier.NewWorker(g.QueueNum, reader, class)
			worker.Log = verdictLog
			worker.Device = dc.Name
			worker.Metrics = reg
			worker.Kernel = kern

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer reader.Close()
				if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
					log.WithError(err).Error("worker exited", "device", dc.Name, "queue", worker.QueueNum)
				}
			}()
		}
		log.Info("device classifier started", "device", dc.Name, "queues", len(rs.Groups))
	}

	<-ctx.Done()
	log.Info("shutting down, waiting for workers to drain")
	wg.Wait()
}
