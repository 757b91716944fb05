package tdma

import (
	"sync"

	"github.com/signalsfoundry/tdma-radio-model/model"
)

// Disposition is one recorded publisher call. Components is nil for
// flow-level calls; Inbound is meaningful only for DirectionInbound and
// Outbound only for DirectionOutbound.
type Disposition struct {
	Direction  Direction
	Src        model.NEMID
	Dst        model.NEMID
	Priority   model.Priority
	Size       int
	Components model.MessageComponents
	Inbound    InboundAction
	Outbound   OutboundAction
}

// Units returns the number of packets or components the disposition covers.
func (d Disposition) Units() int {
	if d.Components == nil {
		return 1
	}
	return len(d.Components)
}

// CapturingPublisher keeps every disposition in memory. It is intended for
// tests and for offline inspection of short runs.
type CapturingPublisher struct {
	mu      sync.Mutex
	records []Disposition
	tally   tallyCounter
}

var _ PacketStatusPublisher = (*CapturingPublisher)(nil)

// NewCapturingPublisher returns an empty capturing publisher.
func NewCapturingPublisher() *CapturingPublisher {
	return &CapturingPublisher{}
}

func (p *CapturingPublisher) InboundComponent(src model.NEMID, c model.MessageComponent, action InboundAction) {
	p.inbound(Disposition{
		Src:        src,
		Dst:        c.Destination,
		Priority:   c.Priority,
		Size:       c.Size(),
		Components: model.MessageComponents{c},
		Inbound:    action,
	})
}

func (p *CapturingPublisher) InboundComponents(src model.NEMID, cs model.MessageComponents, action InboundAction) {
	d := Disposition{
		Src:        src,
		Size:       cs.TotalSize(),
		Components: append(model.MessageComponents{}, cs...),
		Inbound:    action,
	}
	if len(cs) > 0 {
		d.Dst = cs[0].Destination
		d.Priority = cs[0].Priority
	}
	p.inbound(d)
}

func (p *CapturingPublisher) Inbound(src, dst model.NEMID, priority model.Priority, size int, action InboundAction) {
	p.inbound(Disposition{Src: src, Dst: dst, Priority: priority, Size: size, Inbound: action})
}

func (p *CapturingPublisher) Outbound(src, dst model.NEMID, priority model.Priority, size int, action OutboundAction) {
	p.outbound(Disposition{Src: src, Dst: dst, Priority: priority, Size: size, Outbound: action})
}

func (p *CapturingPublisher) OutboundComponents(src model.NEMID, cs model.MessageComponents, action OutboundAction) {
	d := Disposition{
		Src:        src,
		Size:       cs.TotalSize(),
		Components: append(model.MessageComponents{}, cs...),
		Outbound:   action,
	}
	if len(cs) > 0 {
		d.Dst = cs[0].Destination
		d.Priority = cs[0].Priority
	}
	p.outbound(d)
}

func (p *CapturingPublisher) inbound(d Disposition) {
	if !d.Inbound.Valid() {
		return
	}
	d.Direction = DirectionInbound
	p.mu.Lock()
	p.records = append(p.records, d)
	p.mu.Unlock()
	p.tally.addInbound(d.Inbound)
}

func (p *CapturingPublisher) outbound(d Disposition) {
	if !d.Outbound.Valid() {
		return
	}
	d.Direction = DirectionOutbound
	p.mu.Lock()
	p.records = append(p.records, d)
	p.mu.Unlock()
	p.tally.addOutbound(d.Outbound)
}

// Records returns a copy of every disposition in call order.
func (p *CapturingPublisher) Records() []Disposition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Disposition(nil), p.records...)
}

// Tally returns the per-action disposition counts.
func (p *CapturingPublisher) Tally() Tally {
	return p.tally.snapshot()
}

// Reset discards every record.
func (p *CapturingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = nil
	p.tally.reset()
}
