// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every Prometheus collector the daemon exports, keyed by
// the dimension Collector updates them along (interface, zone, policy
// chain, ipset, or no dimension at all for process-wide gauges).
type Registry struct {
	InterfaceRxBytes   *prometheus.GaugeVec
	InterfaceTxBytes   *prometheus.GaugeVec
	InterfaceRxPackets *prometheus.GaugeVec
	InterfaceTxPackets *prometheus.GaugeVec
	InterfaceErrors    *prometheus.GaugeVec

	IPSetSize *prometheus.GaugeVec

	RuleMatches     *prometheus.CounterVec
	DroppedPackets  *prometheus.CounterVec
	AcceptedPackets *prometheus.CounterVec

	ConfigReload *prometheus.CounterVec

	ConntrackCount prometheus.Gauge
	ConntrackMax   prometheus.Gauge
	Uptime         prometheus.Gauge
}

// NewRegistry builds a Registry and registers every collector it holds
// with reg. Passing prometheus.NewRegistry() keeps tests isolated from
// the global default registry; production code passes
// prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		InterfaceRxBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_interface_rx_bytes",
			Help: "Received bytes per network interface.",
		}, []string{"interface", "zone"}),
		InterfaceTxBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_interface_tx_bytes",
			Help: "Transmitted bytes per network interface.",
		}, []string{"interface", "zone"}),
		InterfaceRxPackets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_interface_rx_packets",
			Help: "Received packets per network interface.",
		}, []string{"interface", "zone"}),
		InterfaceTxPackets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_interface_tx_packets",
			Help: "Transmitted packets per network interface.",
		}, []string{"interface", "zone"}),
		InterfaceErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_interface_errors",
			Help: "Interface errors, labeled by direction (rx/tx).",
		}, []string{"interface", "direction"}),
		IPSetSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flywall_ipset_size",
			Help: "Number of elements in an nftables set.",
		}, []string{"set", "type"}),
		RuleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flywall_rule_matches_total",
			Help: "Packets matched per chain, policy, and verdict.",
		}, []string{"chain", "policy", "verdict"}),
		DroppedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flywall_dropped_packets_total",
			Help: "Packets dropped per chain and source.",
		}, []string{"chain", "source"}),
		AcceptedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flywall_accepted_packets_total",
			Help: "Packets accepted per chain and source.",
		}, []string{"chain", "source"}),
		ConfigReload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flywall_config_reload_total",
			Help: "Configuration reload attempts, labeled by outcome.",
		}, []string{"status"}),
		ConntrackCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flywall_conntrack_count",
			Help: "Current conntrack table entry count.",
		}),
		ConntrackMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flywall_conntrack_max",
			Help: "Configured conntrack table size limit.",
		}),
		Uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flywall_uptime_seconds",
			Help: "Seconds since the metrics collector started.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.InterfaceRxBytes, r.InterfaceTxBytes, r.InterfaceRxPackets, r.InterfaceTxPackets,
		r.InterfaceErrors, r.IPSetSize, r.RuleMatches, r.DroppedPackets, r.AcceptedPackets,
		r.ConfigReload, r.ConntrackCount, r.ConntrackMax, r.Uptime,
	} {
		reg.MustRegister(c)
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Get returns the process-wide Registry, registered against Prometheus's
// default registerer, building it on first use.
func Get() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}
