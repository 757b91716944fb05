// Package tdma records the fate of packets moving through the TDMA MAC of a
// single NEM and composes link quality with those records on the receive path.
package tdma

// InboundAction classifies the fate of a received packet or component.
type InboundAction uint8

const (
	InboundAcceptGood          InboundAction = iota // accepted and sent upstream
	InboundDropBadControl                           // malformed control message
	InboundDropSlotNotRx                            // received in a slot that is not a receive slot
	InboundDropSlotMissedRx                         // received late
	InboundDropMissFragment                         // one or more fragments missing
	InboundDropSpectrumService                      // spectrum service query failed
	InboundDropSINR                                 // SINR below threshold
	InboundDropRegistrationID                       // not for this radio model
	InboundDropDestinationMAC                       // not for this NEM
	InboundDropTooLong                              // propagation plus duration exceeds the slot
	numInboundActions
)

var inboundNames = [numInboundActions]string{
	"accept_good",
	"drop_bad_control",
	"drop_slot_not_rx",
	"drop_slot_missed_rx",
	"drop_miss_fragment",
	"drop_spectrum_service",
	"drop_sinr",
	"drop_registration_id",
	"drop_destination_mac",
	"drop_too_long",
}

// Valid reports whether a is one of the defined inbound actions.
func (a InboundAction) Valid() bool { return a < numInboundActions }

func (a InboundAction) String() string {
	if !a.Valid() {
		return "invalid"
	}
	return inboundNames[a]
}

// InboundActions lists every inbound action in declaration order.
func InboundActions() []InboundAction {
	out := make([]InboundAction, numInboundActions)
	for i := range out {
		out[i] = InboundAction(i)
	}
	return out
}

// OutboundAction classifies the fate of a packet or component handed down for
// transmission.
type OutboundAction uint8

const (
	OutboundAcceptGood      OutboundAction = iota // accepted and sent downstream
	OutboundDropTooBig                            // too big and fragmentation disabled
	OutboundDropOverflow                          // queue overflow
	OutboundDropFlowControl                       // flow control error
	numOutboundActions
)

var outboundNames = [numOutboundActions]string{
	"accept_good",
	"drop_too_big",
	"drop_overflow",
	"drop_flow_control",
}

// Valid reports whether a is one of the defined outbound actions.
func (a OutboundAction) Valid() bool { return a < numOutboundActions }

func (a OutboundAction) String() string {
	if !a.Valid() {
		return "invalid"
	}
	return outboundNames[a]
}

// OutboundActions lists every outbound action in declaration order.
func OutboundActions() []OutboundAction {
	out := make([]OutboundAction, numOutboundActions)
	for i := range out {
		out[i] = OutboundAction(i)
	}
	return out
}

func inboundColumns() []string  { return inboundNames[:] }
func outboundColumns() []string { return outboundNames[:] }
