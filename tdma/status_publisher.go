package tdma

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/tdma-radio-model/internal/logging"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"golang.org/x/time/rate"
)

// Statistics registered by StatusPublisher.Initialize.
const (
	StatInboundPackets   = "tdma_inbound_packets_total"
	StatInboundBytes     = "tdma_inbound_bytes_total"
	StatOutboundPackets  = "tdma_outbound_packets_total"
	StatOutboundBytes    = "tdma_outbound_bytes_total"
	StatRxUnicastBytes   = "tdma_rx_unicast_bytes"
	StatRxBroadcastBytes = "tdma_rx_broadcast_bytes"
	StatTxUnicastBytes   = "tdma_tx_unicast_bytes"
	StatTxBroadcastBytes = "tdma_tx_broadcast_bytes"

	statusTableMaxRows = 1024
)

const (
	castUnicast = iota
	castBroadcast
	numCasts
)

var castNames = [numCasts]string{"unicast", "broadcast"}

func castOf(dst model.NEMID) int {
	if dst.IsBroadcast() {
		return castBroadcast
	}
	return castUnicast
}

// statusMetrics holds the pre-bound collectors created by Initialize.
type statusMetrics struct {
	inPackets  [numCasts][numInboundActions]prometheus.Counter
	inBytes    [numCasts][numInboundActions]prometheus.Counter
	outPackets [numCasts][numOutboundActions]prometheus.Counter
	outBytes   [numCasts][numOutboundActions]prometheus.Counter

	rx [numCasts]*registrar.StatisticTable
	tx [numCasts]*registrar.StatisticTable
}

// StatusPublisher is the live PacketStatusPublisher. Dispositions feed
// Prometheus counters labelled by cast and action, per-source and
// per-destination byte tables split by queue, and lock-free per-action
// tallies. It is safe for concurrent use by the inbound and outbound paths.
//
// Counters and tables count packets and bytes per component; the tally
// counts publisher calls.
type StatusPublisher struct {
	nem   model.NEMID
	log   logging.Logger
	tally tallyCounter

	metrics atomic.Pointer[statusMetrics]
}

var _ PacketStatusPublisher = (*StatusPublisher)(nil)

// StatusPublisherOption customises StatusPublisher construction.
type StatusPublisherOption func(*StatusPublisher)

// WithPublisherLogger sets the logger used to report misuse.
func WithPublisherLogger(l logging.Logger) StatusPublisherOption {
	return func(p *StatusPublisher) {
		p.log = logging.OrNoop(l)
	}
}

// NewStatusPublisher constructs a publisher for nem. Until Initialize succeeds
// only the in-memory tally is maintained.
func NewStatusPublisher(nem model.NEMID, opts ...StatusPublisherOption) *StatusPublisher {
	p := &StatusPublisher{
		nem: nem,
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logging.Throttled(p.log.With(logging.Int("nem", int(nem))), rate.Every(time.Second), 5)
	return p
}

// Initialize registers the publisher's statistics.
func (p *StatusPublisher) Initialize(reg registrar.Registrar) error {
	stats := reg.Statistics()
	m := &statusMetrics{}
	nem := p.nem.String()

	inPackets, err := stats.RegisterCounterVec(StatInboundPackets,
		"Inbound packets by cast and disposition.", "nem", "cast", "action")
	if err != nil {
		return fmt.Errorf("register %s: %w", StatInboundPackets, err)
	}
	inBytes, err := stats.RegisterCounterVec(StatInboundBytes,
		"Inbound bytes by cast and disposition.", "nem", "cast", "action")
	if err != nil {
		return fmt.Errorf("register %s: %w", StatInboundBytes, err)
	}
	outPackets, err := stats.RegisterCounterVec(StatOutboundPackets,
		"Outbound packets by cast and disposition.", "nem", "cast", "action")
	if err != nil {
		return fmt.Errorf("register %s: %w", StatOutboundPackets, err)
	}
	outBytes, err := stats.RegisterCounterVec(StatOutboundBytes,
		"Outbound bytes by cast and disposition.", "nem", "cast", "action")
	if err != nil {
		return fmt.Errorf("register %s: %w", StatOutboundBytes, err)
	}

	for cast, castName := range castNames {
		for _, a := range InboundActions() {
			m.inPackets[cast][a] = inPackets.WithLabelValues(nem, castName, a.String())
			m.inBytes[cast][a] = inBytes.WithLabelValues(nem, castName, a.String())
		}
		for _, a := range OutboundActions() {
			m.outPackets[cast][a] = outPackets.WithLabelValues(nem, castName, a.String())
			m.outBytes[cast][a] = outBytes.WithLabelValues(nem, castName, a.String())
		}
	}

	tables := []struct {
		dst     **registrar.StatisticTable
		name    string
		help    string
		peer    string
		columns []string
	}{
		{&m.rx[castUnicast], StatRxUnicastBytes, "Unicast bytes received per source and queue", "src", inboundColumns()},
		{&m.rx[castBroadcast], StatRxBroadcastBytes, "Broadcast bytes received per source and queue", "src", inboundColumns()},
		{&m.tx[castUnicast], StatTxUnicastBytes, "Unicast bytes sent per destination and queue", "dst", outboundColumns()},
		{&m.tx[castBroadcast], StatTxBroadcastBytes, "Broadcast bytes sent per destination and queue", "dst", outboundColumns()},
	}
	for _, tbl := range tables {
		t, err := stats.RegisterTable(tbl.name, tbl.help, registrar.TableOptions{
			KeyLabels: []string{"nem", tbl.peer, "queue"},
			Columns:   tbl.columns,
			MaxRows:   statusTableMaxRows,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", tbl.name, err)
		}
		*tbl.dst = t
	}

	p.metrics.Store(m)
	return nil
}

func (p *StatusPublisher) InboundComponent(src model.NEMID, c model.MessageComponent, action InboundAction) {
	if !p.validInbound(action) {
		return
	}
	p.tally.addInbound(action)
	p.recordInbound(src, c.Destination, c.Priority, c.Size(), action)
}

func (p *StatusPublisher) InboundComponents(src model.NEMID, cs model.MessageComponents, action InboundAction) {
	if !p.validInbound(action) {
		return
	}
	p.tally.addInbound(action)
	for _, c := range cs {
		p.recordInbound(src, c.Destination, c.Priority, c.Size(), action)
	}
}

func (p *StatusPublisher) Inbound(src, dst model.NEMID, priority model.Priority, size int, action InboundAction) {
	if !p.validInbound(action) {
		return
	}
	p.tally.addInbound(action)
	p.recordInbound(src, dst, priority, size, action)
}

func (p *StatusPublisher) Outbound(src, dst model.NEMID, priority model.Priority, size int, action OutboundAction) {
	if !p.validOutbound(action) {
		return
	}
	p.tally.addOutbound(action)
	p.recordOutbound(dst, priority, size, action)
}

func (p *StatusPublisher) OutboundComponents(src model.NEMID, cs model.MessageComponents, action OutboundAction) {
	if !p.validOutbound(action) {
		return
	}
	p.tally.addOutbound(action)
	for _, c := range cs {
		p.recordOutbound(c.Destination, c.Priority, c.Size(), action)
	}
}

// Tally returns the per-action disposition counts.
func (p *StatusPublisher) Tally() Tally {
	return p.tally.snapshot()
}

func (p *StatusPublisher) recordInbound(src, dst model.NEMID, priority model.Priority, size int, action InboundAction) {
	m := p.metrics.Load()
	if m == nil {
		return
	}
	cast := castOf(dst)
	bytes := float64(nonNegative(size))
	m.inPackets[cast][action].Inc()
	m.inBytes[cast][action].Add(bytes)
	m.rx[cast].Add(p.rowKeys(src, priority), action.String(), bytes)
}

func (p *StatusPublisher) recordOutbound(dst model.NEMID, priority model.Priority, size int, action OutboundAction) {
	m := p.metrics.Load()
	if m == nil {
		return
	}
	cast := castOf(dst)
	bytes := float64(nonNegative(size))
	m.outPackets[cast][action].Inc()
	m.outBytes[cast][action].Add(bytes)
	m.tx[cast].Add(p.rowKeys(dst, priority), action.String(), bytes)
}

func (p *StatusPublisher) rowKeys(peer model.NEMID, priority model.Priority) []string {
	return []string{p.nem.String(), peer.String(), strconv.Itoa(priority.QueueIndex())}
}

func (p *StatusPublisher) validInbound(a InboundAction) bool {
	if a.Valid() {
		return true
	}
	p.log.Warn(context.Background(), "ignoring invalid inbound action", logging.Int("action", int(a)))
	return false
}

func (p *StatusPublisher) validOutbound(a OutboundAction) bool {
	if a.Valid() {
		return true
	}
	p.log.Warn(context.Background(), "ignoring invalid outbound action", logging.Int("action", int(a)))
	return false
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
