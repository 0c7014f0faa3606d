// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"context"
	"strconv"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/flywall/internal/kernel"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/metrics"
)

// QueueReader abstracts the nfqueue transport so Worker's decode-and-
// verdict loop is independent of the platform-specific netlink socket
// (see nfqueue_linux.go / nfqueue_stub.go).
type QueueReader interface {
	// Run blocks, invoking handle for every queued packet until ctx is
	// canceled or an unrecoverable error occurs.
	Run(ctx context.Context, handle func(id uint32, raw []byte)) error
	SetVerdict(id uint32, accept bool) error
	Close() error
}

// Worker owns one nfqueue number and feeds every packet it receives
// through decode -> Classifier.Evaluate -> verdict.
type Worker struct {
	QueueNum int
	Device   string // device name this queue serves, used as a metrics label
	Reader   QueueReader
	Class    *Classifier
	Log      VerdictLog        // optional; nil disables classifier-log CSV output
	Metrics  *metrics.Registry // optional; nil disables Prometheus counters
	Kernel   kernel.Kernel     // optional; nil disables auto-blocklisting
	log      *logging.Logger
}

// NewWorker builds a worker bound to one queue number.
func NewWorker(queueNum int, reader QueueReader, c *Classifier) *Worker {
	return &Worker{
		QueueNum: queueNum,
		Reader:   reader,
		Class:    c,
		log:      logging.WithComponent("classifier-worker").WithFields(map[string]any{"queue": queueNum}),
	}
}

// Run starts the worker's receive loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.Reader.Run(ctx, func(id uint32, raw []byte) {
		pkt, instanceKey := decode(raw)
		for domain, addr := range pkt.dnsAnswers {
			w.Class.RecordDNSAnswer(domain, addr)
		}
		verdict := w.Class.Evaluate(w.QueueNum, pkt, instanceKey)
		if err := w.Reader.SetVerdict(id, verdict.Accept); err != nil {
			w.log.WithError(err).Error("failed to set verdict", "packet_id", id)
		}
		if w.Log != nil {
			w.Log.Write(PacketHash(raw), float64(pkt.Seen.UnixNano())/1e9, verdict.Policy, verdict.Accept)
		}
		if w.Metrics != nil {
			w.recordMetrics(verdict)
		}
		if w.Kernel != nil && verdict.Reason == "counter bound exceeded" && pkt.SrcIP != "" {
			if err := w.Kernel.AddBlock(pkt.SrcIP); err != nil {
				w.log.WithError(err).Warn("failed to blocklist host exceeding its counter bound", "src_ip", pkt.SrcIP)
			}
		}
	})
}

// recordMetrics updates the worker's share of the process-wide Prometheus
// counters with the outcome of one packet's verdict.
func (w *Worker) recordMetrics(verdict Verdict) {
	queue := strconv.Itoa(w.QueueNum)
	verdictLabel := "drop"
	if verdict.Accept {
		verdictLabel = "accept"
		w.Metrics.AcceptedPackets.WithLabelValues(w.Device, queue).Inc()
	} else {
		w.Metrics.DroppedPackets.WithLabelValues(w.Device, queue).Inc()
	}
	w.Metrics.RuleMatches.WithLabelValues(w.Device, verdict.Policy, verdictLabel).Inc()
}

// decode extracts the fields the classifier's userspace predicates need
// from a raw IP packet using gopacket's layered decoder, and derives the
// per-peer instance key used to look up interaction state.
func decode(raw []byte) (*Packet, string) {
	pkt := &Packet{Length: len(raw), Fields: map[string]string{}, Seen: time.Now()}

	packet := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		if ip4, ok := ipLayer.(*layers.IPv4); ok {
			pkt.SrcIP = ip4.SrcIP.String()
			pkt.DstIP = ip4.DstIP.String()
		}
	}
	if ipLayer := packet.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		if ip6, ok := ipLayer.(*layers.IPv6); ok {
			pkt.SrcIP = ip6.SrcIP.String()
			pkt.DstIP = ip6.DstIP.String()
		}
	}
	if ethLayer := packet.Layer(layers.LayerTypeEthernet); ethLayer != nil {
		if eth, ok := ethLayer.(*layers.Ethernet); ok {
			pkt.SrcMAC = eth.SrcMAC.String()
			pkt.DstMAC = eth.DstMAC.String()
		}
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		if tcp, ok := tcpLayer.(*layers.TCP); ok {
			pkt.Fields["tcp.src-port"] = tcp.SrcPort.String()
			pkt.Fields["tcp.dst-port"] = tcp.DstPort.String()
			if (tcp.SrcPort == 80 || tcp.DstPort == 80) && len(tcp.Payload) > 0 {
				decodeHTTPLike("http", "HTTP", tcp.Payload, pkt)
			}
		}
	}
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		if udp, ok := udpLayer.(*layers.UDP); ok {
			pkt.Fields["udp.src-port"] = udp.SrcPort.String()
			pkt.Fields["udp.dst-port"] = udp.DstPort.String()
			decodeDNS(udp.Payload, pkt)
			pkt.dnsAnswers = dnsAnswers(udp.Payload)

			switch {
			case udp.SrcPort == 67 || udp.SrcPort == 68 || udp.DstPort == 67 || udp.DstPort == 68:
				decodeDHCP(udp.Payload, pkt)
			case udp.SrcPort == 5683 || udp.DstPort == 5683:
				decodeCoAP(udp.Payload, pkt)
			case udp.SrcPort == 1900 || udp.DstPort == 1900:
				decodeHTTPLike("ssdp", "SSDP", udp.Payload, pkt)
			}
		}
	}

	instanceKey := pkt.SrcIP + "->" + pkt.DstIP
	return pkt, instanceKey
}
