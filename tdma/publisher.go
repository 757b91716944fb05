package tdma

import (
	"sync/atomic"

	"github.com/signalsfoundry/tdma-radio-model/model"
)

// PacketStatusPublisher records the terminal disposition of packets flowing
// through one NEM. Each disposition point in the MAC calls exactly one method
// exactly once per packet or component. Methods never block and never fail.
type PacketStatusPublisher interface {
	// InboundComponent records the fate of one component received from src.
	InboundComponent(src model.NEMID, component model.MessageComponent, action InboundAction)
	// InboundComponents records one action across a batch of components, such
	// as a fragment group rejected together.
	InboundComponents(src model.NEMID, components model.MessageComponents, action InboundAction)
	// Inbound records a flow-level inbound disposition for a packet that was
	// not parsed into components.
	Inbound(src, dst model.NEMID, priority model.Priority, size int, action InboundAction)
	// Outbound records a flow-level outbound disposition, typically before
	// fragmentation.
	Outbound(src, dst model.NEMID, priority model.Priority, size int, action OutboundAction)
	// OutboundComponents records the fate of components after fragmentation.
	OutboundComponents(src model.NEMID, components model.MessageComponents, action OutboundAction)
}

// Direction of a disposition.
type Direction uint8

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// Tally counts dispositions per action. Each publisher call is one
// disposition regardless of how many components it carries.
type Tally struct {
	Inbound  map[InboundAction]uint64
	Outbound map[OutboundAction]uint64
}

// InboundCount returns the number of inbound dispositions with action a.
func (t Tally) InboundCount(a InboundAction) uint64 { return t.Inbound[a] }

// OutboundCount returns the number of outbound dispositions with action a.
func (t Tally) OutboundCount(a OutboundAction) uint64 { return t.Outbound[a] }

// Total returns the number of dispositions in both directions.
func (t Tally) Total() uint64 {
	var n uint64
	for _, v := range t.Inbound {
		n += v
	}
	for _, v := range t.Outbound {
		n += v
	}
	return n
}

// tallyCounter is a lock-free per-action counter.
type tallyCounter struct {
	inbound  [numInboundActions]atomic.Uint64
	outbound [numOutboundActions]atomic.Uint64
}

func (c *tallyCounter) addInbound(a InboundAction) {
	c.inbound[a].Add(1)
}

func (c *tallyCounter) addOutbound(a OutboundAction) {
	c.outbound[a].Add(1)
}

// snapshot copies the non-zero counters.
func (c *tallyCounter) snapshot() Tally {
	t := Tally{
		Inbound:  make(map[InboundAction]uint64),
		Outbound: make(map[OutboundAction]uint64),
	}
	for i := range c.inbound {
		if v := c.inbound[i].Load(); v > 0 {
			t.Inbound[InboundAction(i)] = v
		}
	}
	for i := range c.outbound {
		if v := c.outbound[i].Load(); v > 0 {
			t.Outbound[OutboundAction(i)] = v
		}
	}
	return t
}

func (c *tallyCounter) reset() {
	for i := range c.inbound {
		c.inbound[i].Store(0)
	}
	for i := range c.outbound {
		c.outbound[i].Store(0)
	}
}

// NoopPublisher discards every disposition.
type NoopPublisher struct{}

var _ PacketStatusPublisher = NoopPublisher{}

func (NoopPublisher) InboundComponent(model.NEMID, model.MessageComponent, InboundAction)     {}
func (NoopPublisher) InboundComponents(model.NEMID, model.MessageComponents, InboundAction)   {}
func (NoopPublisher) Inbound(model.NEMID, model.NEMID, model.Priority, int, InboundAction)    {}
func (NoopPublisher) Outbound(model.NEMID, model.NEMID, model.Priority, int, OutboundAction)  {}
func (NoopPublisher) OutboundComponents(model.NEMID, model.MessageComponents, OutboundAction) {}
