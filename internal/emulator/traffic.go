package emulator

import (
	"context"
	"math/rand"
	"time"

	"github.com/signalsfoundry/tdma-radio-model/model"
)

// TrafficGenerator offers synthetic outbound packets to a node at a fixed
// interval. Destinations are drawn from the configured transmitters plus the
// broadcast address; sizes range up to a quarter above the MTU so that some
// packets are rejected as too big.
type TrafficGenerator struct {
	node     *Node
	interval time.Duration
	rng      *rand.Rand
}

// NewTrafficGenerator returns a generator for node. The random source is
// derived from the node's seed so runs are reproducible.
func NewTrafficGenerator(node *Node, interval time.Duration) *TrafficGenerator {
	return &TrafficGenerator{
		node:     node,
		interval: interval,
		rng:      rand.New(rand.NewSource(node.env.Seed + 1)),
	}
}

// Offer enqueues one packet and reports whether it was admitted.
func (g *TrafficGenerator) Offer() bool {
	env := g.node.env
	dst := model.BroadcastNEM
	if k := len(env.Transmitters); k > 0 {
		if i := g.rng.Intn(k + 1); i < k {
			dst = model.NEMID(env.Transmitters[i].NEM)
		}
	}
	maxSize := env.MaxPacketBytes + env.MaxPacketBytes/4
	size := 1 + g.rng.Intn(maxSize)
	return g.node.Enqueue(dst, model.Priority(g.rng.Intn(9)), make([]byte, size))
}

// Run offers packets until ctx is done.
func (g *TrafficGenerator) Run(ctx context.Context) error {
	if g.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Offer()
		}
	}
}
