package model

// ComponentType distinguishes payload data from MAC control traffic.
type ComponentType int

const (
	ComponentData ComponentType = iota
	ComponentControl
)

func (t ComponentType) String() string {
	switch t {
	case ComponentControl:
		return "control"
	default:
		return "data"
	}
}

// MessageComponent is one addressed unit carried inside a TDMA frame: a whole
// packet or a fragment of one.
type MessageComponent struct {
	Type        ComponentType
	Destination NEMID
	Priority    Priority
	Data        []byte
}

// Size returns the payload size in bytes.
func (c MessageComponent) Size() int { return len(c.Data) }

// IsBroadcast reports whether the component is addressed to every NEM.
func (c MessageComponent) IsBroadcast() bool { return c.Destination.IsBroadcast() }

// MessageComponents is an ordered group of components, e.g. the fragments of a
// single packet or the contents of one slot.
type MessageComponents []MessageComponent

// TotalSize returns the combined payload size in bytes.
func (cs MessageComponents) TotalSize() int {
	total := 0
	for _, c := range cs {
		total += c.Size()
	}
	return total
}
