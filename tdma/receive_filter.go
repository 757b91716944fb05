package tdma

import (
	"github.com/signalsfoundry/tdma-radio-model/model"
)

// LinkQuality is the read side of a SINR table.
type LinkQuality interface {
	SINR(antenna model.AntennaIndex, frequency model.FrequencyHz, src model.NEMID) (float64, bool)
	Threshold() float64
}

// ReceiveFilter decides which received components of one NEM are passed
// upstream and reports exactly one disposition for every component it sees.
type ReceiveFilter struct {
	nem       model.NEMID
	quality   LinkQuality
	publisher PacketStatusPublisher
}

// NewReceiveFilter composes quality and publisher for the receiving NEM nem.
// A nil publisher discards dispositions.
func NewReceiveFilter(nem model.NEMID, quality LinkQuality, publisher PacketStatusPublisher) *ReceiveFilter {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &ReceiveFilter{nem: nem, quality: quality, publisher: publisher}
}

// Filter classifies the components received from src on (antenna, frequency)
// and returns the accepted ones. A source with no live SINR sample is dropped
// as a spectrum service failure and a source below the SINR threshold is
// dropped as a batch. Otherwise each component is checked against this NEM's
// address individually.
func (f *ReceiveFilter) Filter(src model.NEMID, antenna model.AntennaIndex, frequency model.FrequencyHz,
	components model.MessageComponents) model.MessageComponents {
	if len(components) == 0 {
		return nil
	}

	sinr, ok := f.quality.SINR(antenna, frequency, src)
	if !ok {
		f.publisher.InboundComponents(src, components, InboundDropSpectrumService)
		return nil
	}
	if sinr < f.quality.Threshold() {
		f.publisher.InboundComponents(src, components, InboundDropSINR)
		return nil
	}

	accepted := make(model.MessageComponents, 0, len(components))
	for _, c := range components {
		if !c.IsBroadcast() && c.Destination != f.nem {
			f.publisher.InboundComponent(src, c, InboundDropDestinationMAC)
			continue
		}
		f.publisher.InboundComponent(src, c, InboundAcceptGood)
		accepted = append(accepted, c)
	}
	return accepted
}
