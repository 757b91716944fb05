// Package emulator drives one NEM's receive and transmit pipelines from the
// TDMA slot timer using a synthetic radio environment.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/tdma-radio-model/core"
	"github.com/signalsfoundry/tdma-radio-model/internal/config"
	"github.com/signalsfoundry/tdma-radio-model/internal/logging"
	"github.com/signalsfoundry/tdma-radio-model/internal/observability"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"github.com/signalsfoundry/tdma-radio-model/tdma"
	"github.com/signalsfoundry/tdma-radio-model/timectrl"
)

// misaddressedRatio is the share of unicast frames a transmitter sends to a
// NEM other than this one.
const misaddressedRatio = 0.1

// Publisher is a PacketStatusPublisher that can be registered and tallied.
type Publisher interface {
	tdma.PacketStatusPublisher
	Tally() tdma.Tally
}

// SlotReport summarises one processed slot.
type SlotReport struct {
	Frame             uint64
	Slot              int
	Transmitting      bool
	Heard             int // transmitters active in the slot
	Received          int // components offered to the receive path
	Accepted          int // components passed upstream
	Sent              int // packets dequeued for transmission
	LiveContributions int
}

// Node is one emulated NEM.
type Node struct {
	nem   model.NEMID
	env   config.Emulation
	log   logging.Logger
	clock timectrl.SimClock

	table     *core.SINRTable
	publisher Publisher
	filter    *tdma.ReceiveFilter
	frames    *observability.FrameCollector

	noiseFloorMW  float64
	sensitivityMW float64

	rngMu sync.Mutex
	rng   *rand.Rand

	queueMu sync.Mutex
	queue   []model.MessageComponent

	offeredIn  atomic.Uint64
	offeredOut atomic.Uint64
}

// Option customises Node construction.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(l logging.Logger) Option {
	return func(n *Node) { n.log = logging.OrNoop(l) }
}

// WithClock sets the clock used to stamp SINR samples.
func WithClock(c timectrl.SimClock) Option {
	return func(n *Node) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithPublisher replaces the live StatusPublisher, e.g. with a
// tdma.CapturingPublisher in tests.
func WithPublisher(p Publisher) Option {
	return func(n *Node) {
		if p != nil {
			n.publisher = p
		}
	}
}

// WithFrameCollector records slot metrics on fc.
func WithFrameCollector(fc *observability.FrameCollector) Option {
	return func(n *Node) { n.frames = fc }
}

// New builds a node for nem in environment env and registers its components
// with reg. Call Configure with resolved parameters before the first slot.
func New(nem model.NEMID, env config.Emulation, reg registrar.Registrar, opts ...Option) (*Node, error) {
	if reg == nil {
		return nil, errors.New("emulator: nil registrar")
	}
	n := &Node{
		nem:   nem,
		env:   env,
		log:   logging.Noop(),
		clock: timectrl.WallClock{},
		rng:   rand.New(rand.NewSource(env.Seed)),

		noiseFloorMW:  core.DBmToMilliwatts(env.NoiseFloorDBm),
		sensitivityMW: core.DBmToMilliwatts(env.SensitivityDBm),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With(logging.Int("nem", int(nem)))

	n.table = core.NewSINRTable(nem, core.WithClock(n.clock), core.WithLogger(n.log))
	if err := n.table.Initialize(reg); err != nil {
		return nil, fmt.Errorf("emulator: initialise sinr table: %w", err)
	}
	if n.publisher == nil {
		sp := tdma.NewStatusPublisher(nem, tdma.WithPublisherLogger(n.log))
		if err := sp.Initialize(reg); err != nil {
			return nil, fmt.Errorf("emulator: initialise status publisher: %w", err)
		}
		n.publisher = sp
	}
	n.filter = tdma.NewReceiveFilter(nem, n.table, n.publisher)
	return n, nil
}

// Configure applies resolved registrar parameters to the node's components.
func (n *Node) Configure(update registrar.ConfigurationUpdate) {
	n.table.Configure(update)
}

// NEM returns the node id.
func (n *Node) NEM() model.NEMID { return n.nem }

// Table returns the node's SINR table.
func (n *Node) Table() *core.SINRTable { return n.table }

// Publisher returns the publisher shared by the node's pipelines.
func (n *Node) Publisher() Publisher { return n.publisher }

// Offered returns how many inbound components and outbound packets have been
// handed to the node so far.
func (n *Node) Offered() (inbound, outbound uint64) {
	return n.offeredIn.Load(), n.offeredOut.Load()
}

// Enqueue admits one outbound packet. Oversized packets and packets arriving
// at a full queue are dropped. It reports whether the packet was queued and is
// safe to call concurrently with RunSlot.
func (n *Node) Enqueue(dst model.NEMID, priority model.Priority, data []byte) bool {
	n.offeredOut.Add(1)
	size := len(data)

	if size > n.env.MaxPacketBytes {
		n.publisher.Outbound(n.nem, dst, priority, size, tdma.OutboundDropTooBig)
		return false
	}

	n.queueMu.Lock()
	if len(n.queue) >= n.env.QueueDepth {
		n.queueMu.Unlock()
		n.publisher.Outbound(n.nem, dst, priority, size, tdma.OutboundDropOverflow)
		return false
	}
	n.queue = append(n.queue, model.MessageComponent{
		Type:        model.ComponentData,
		Destination: dst,
		Priority:    priority,
		Data:        data,
	})
	n.queueMu.Unlock()

	n.publisher.Outbound(n.nem, dst, priority, size, tdma.OutboundAcceptGood)
	return true
}

// QueueLen returns the number of packets waiting for a transmit slot.
func (n *Node) QueueLen() int {
	n.queueMu.Lock()
	defer n.queueMu.Unlock()
	return len(n.queue)
}

// TransmitSlot reports whether slot is this node's transmit slot.
func (n *Node) TransmitSlot(slot int) bool {
	return n.env.SlotsPerFrame > 0 && slot == int(n.nem)%n.env.SlotsPerFrame
}

type transmission struct {
	tx         config.Transmitter
	components model.MessageComponents
}

// RunSlot processes one TDMA slot. The SINR table is cleared at the slot
// boundary and refilled with one sample per active transmitter and antenna.
// In the node's own transmit slot received frames are dropped and one queued
// packet is sent; otherwise every heard frame goes through the receive filter
// on the antenna with the best SINR.
func (n *Node) RunSlot(ctx context.Context, frame uint64, slot int) SlotReport {
	started := time.Now()
	report := SlotReport{Frame: frame, Slot: slot, Transmitting: n.TransmitSlot(slot)}

	n.table.ResetAll()

	heard := n.sample()
	report.Heard = len(heard)
	report.LiveContributions = n.table.Len()

	freq := model.FrequencyHz(n.env.FrequencyHz)
	for _, h := range heard {
		src := model.NEMID(h.tx.NEM)
		report.Received += len(h.components)
		n.offeredIn.Add(uint64(len(h.components)))

		if report.Transmitting {
			for _, c := range h.components {
				n.publisher.Inbound(src, c.Destination, c.Priority, c.Size(), tdma.InboundDropSlotNotRx)
			}
			continue
		}
		accepted := n.filter.Filter(src, n.bestAntenna(src), freq, h.components)
		report.Accepted += len(accepted)
	}

	if report.Transmitting {
		report.Sent = n.dequeue()
	}

	n.frames.ObserveSlot(time.Since(started))
	n.frames.SetLiveContributions(report.LiveContributions)
	n.log.Debug(ctx, "slot processed",
		logging.Uint64("frame", frame),
		logging.Int("slot", slot),
		logging.Int("heard", report.Heard),
		logging.Int("accepted", report.Accepted),
		logging.Int("sent", report.Sent),
	)
	return report
}

// sample decides which transmitters are active in this slot, feeds their
// received power into the SINR table and builds the frames they sent.
func (n *Node) sample() []transmission {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()

	freq := model.FrequencyHz(n.env.FrequencyHz)
	antennas := n.env.Antennas
	if antennas < 1 {
		antennas = 1
	}

	var heard []transmission
	for _, tx := range n.env.Transmitters {
		if n.rng.Float64() >= tx.DutyCycle {
			continue
		}
		pathLoss := core.FreeSpacePathLossDB(tx.DistanceKm, n.env.FrequencyHz)
		for a := 0; a < antennas; a++ {
			rxDBm := core.ReceivedPowerDBm(tx.TxPowerDBm, 0, 0, pathLoss) + n.fading()
			n.table.Update(model.NEMID(tx.NEM), model.AntennaIndex(a), freq,
				core.DBmToMilliwatts(rxDBm), n.noiseFloorMW, n.sensitivityMW)
		}
		heard = append(heard, transmission{tx: tx, components: n.frameFrom(tx)})
	}
	return heard
}

// fading returns a uniform offset in [-FadingDB/2, FadingDB/2]. Callers hold
// rngMu.
func (n *Node) fading() float64 {
	if n.env.FadingDB <= 0 {
		return 0
	}
	return (n.rng.Float64() - 0.5) * n.env.FadingDB
}

// frameFrom builds the single-component frame sent by tx. Callers hold rngMu.
func (n *Node) frameFrom(tx config.Transmitter) model.MessageComponents {
	dst := n.nem
	switch {
	case tx.Broadcast:
		dst = model.BroadcastNEM
	case n.rng.Float64() < misaddressedRatio:
		dst = model.NEMID(tx.NEM) + 1
		if dst == n.nem {
			dst++
		}
	}
	return model.MessageComponents{{
		Type:        model.ComponentData,
		Destination: dst,
		Priority:    model.Priority(n.rng.Intn(9)),
		Data:        make([]byte, n.env.PacketBytes),
	}}
}

// bestAntenna picks the antenna with the highest SINR for src.
func (n *Node) bestAntenna(src model.NEMID) model.AntennaIndex {
	freq := model.FrequencyHz(n.env.FrequencyHz)
	best, bestSINR := model.AntennaIndex(0), -1.0
	for a := 0; a < n.env.Antennas; a++ {
		if sinr, ok := n.table.SINR(model.AntennaIndex(a), freq, src); ok && sinr > bestSINR {
			best, bestSINR = model.AntennaIndex(a), sinr
		}
	}
	return best
}

// dequeue removes the head of the transmit queue. Admission already reported
// the packet's disposition.
func (n *Node) dequeue() int {
	n.queueMu.Lock()
	defer n.queueMu.Unlock()
	if len(n.queue) == 0 {
		return 0
	}
	n.queue[0] = model.MessageComponent{}
	n.queue = n.queue[1:]
	return 1
}
