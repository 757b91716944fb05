package model

import "strconv"

// NEMID identifies an emulated network node (NEM).
type NEMID uint16

// BroadcastNEM is the destination used for frames addressed to every NEM.
const BroadcastNEM NEMID = 0xFFFF

// IsBroadcast reports whether id is the broadcast address.
func (id NEMID) IsBroadcast() bool { return id == BroadcastNEM }

func (id NEMID) String() string { return strconv.FormatUint(uint64(id), 10) }

// AntennaIndex identifies a receive or transmit antenna on a NEM.
type AntennaIndex uint16

func (a AntennaIndex) String() string { return strconv.FormatUint(uint64(a), 10) }

// FrequencyHz is a carrier frequency in Hz.
type FrequencyHz uint64

func (f FrequencyHz) String() string { return strconv.FormatUint(uint64(f), 10) }

// Priority is the traffic priority carried with a packet. Priorities map onto
// a fixed number of TDMA transmit queues.
type Priority uint8

// NumQueues is the number of TDMA queues. The last queue carries control
// traffic.
const NumQueues = 5

// QueueIndex maps a priority onto its queue: 0-1 -> 0, 2-3 -> 1, 4-5 -> 2,
// 6-7 -> 3 and anything above 7 -> the control queue.
func (p Priority) QueueIndex() int {
	if p > 7 {
		return NumQueues - 1
	}
	return int(p) / 2
}

func (p Priority) String() string { return strconv.FormatUint(uint64(p), 10) }
