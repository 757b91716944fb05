package tdma

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"github.com/stretchr/testify/require"
)

func component(dst model.NEMID, priority model.Priority, size int) model.MessageComponent {
	return model.MessageComponent{
		Type:        model.ComponentData,
		Destination: dst,
		Priority:    priority,
		Data:        make([]byte, size),
	}
}

func TestActionNames(t *testing.T) {
	require.Len(t, InboundActions(), 10)
	require.Len(t, OutboundActions(), 4)
	require.Equal(t, "drop_sinr", InboundDropSINR.String())
	require.Equal(t, "drop_flow_control", OutboundDropFlowControl.String())
	require.False(t, InboundAction(200).Valid())
	require.Equal(t, "invalid", OutboundAction(9).String())

	seen := map[string]bool{}
	for _, a := range InboundActions() {
		require.True(t, a.Valid())
		require.False(t, seen[a.String()], "duplicate name %s", a)
		seen[a.String()] = true
	}
}

func TestCapturingPublisherTallyMatchesCalls(t *testing.T) {
	p := NewCapturingPublisher()
	c := component(2, 1, 100)

	script := []func(){
		func() { p.InboundComponent(1, c, InboundAcceptGood) },
		func() { p.InboundComponent(1, c, InboundAcceptGood) },
		func() { p.InboundComponents(1, model.MessageComponents{c, c, c}, InboundDropMissFragment) },
		func() { p.Inbound(1, 2, 3, 500, InboundDropSlotNotRx) },
		func() { p.Inbound(1, 2, 3, 500, InboundDropSlotNotRx) },
		func() { p.Outbound(2, 1, 0, 2000, OutboundDropTooBig) },
		func() { p.OutboundComponents(2, model.MessageComponents{c}, OutboundAcceptGood) },
		func() { p.Outbound(2, 1, 0, 20, OutboundDropOverflow) },
	}
	for _, call := range script {
		call()
	}

	tally := p.Tally()
	require.Equal(t, map[InboundAction]uint64{
		InboundAcceptGood:       2,
		InboundDropMissFragment: 1,
		InboundDropSlotNotRx:    2,
	}, tally.Inbound)
	require.Equal(t, map[OutboundAction]uint64{
		OutboundDropTooBig:   1,
		OutboundAcceptGood:   1,
		OutboundDropOverflow: 1,
	}, tally.Outbound)
	require.EqualValues(t, len(script), tally.Total())

	records := p.Records()
	require.Len(t, records, len(script))
	require.Equal(t, DirectionInbound, records[2].Direction)
	require.Equal(t, 3, records[2].Units())
	require.Equal(t, 300, records[2].Size)
	require.Equal(t, 1, records[3].Units())
	require.Equal(t, DirectionOutbound, records[5].Direction)
	require.Equal(t, OutboundDropTooBig, records[5].Outbound)

	p.Reset()
	require.Empty(t, p.Records())
	require.Zero(t, p.Tally().Total())
}

func TestCapturingPublisherIgnoresInvalidActions(t *testing.T) {
	p := NewCapturingPublisher()
	p.Inbound(1, 2, 0, 10, InboundAction(99))
	p.Outbound(1, 2, 0, 10, OutboundAction(99))
	require.Empty(t, p.Records())
	require.Zero(t, p.Tally().Total())
}

func TestComponentAndFlowOverloadsAreNotAdditive(t *testing.T) {
	p := NewCapturingPublisher()
	c := component(2, 0, 900)

	p.InboundComponent(1, c, InboundDropTooLong)

	tally := p.Tally()
	require.EqualValues(t, 1, tally.InboundCount(InboundDropTooLong))
	require.EqualValues(t, 1, tally.Total())
	records := p.Records()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Components)
}

func newInitializedPublisher(t *testing.T) (*StatusPublisher, *registrar.Registry) {
	t.Helper()
	reg := registrar.New(prometheus.NewRegistry())
	p := NewStatusPublisher(3)
	require.NoError(t, p.Initialize(reg))
	return p, reg
}

func TestStatusPublisherCountersAndTables(t *testing.T) {
	p, reg := newInitializedPublisher(t)

	p.InboundComponents(1, model.MessageComponents{
		component(3, 0, 100),
		component(3, 7, 50),
		component(model.BroadcastNEM, 0, 10),
	}, InboundAcceptGood)
	p.Inbound(1, 3, 2, 40, InboundDropSlotMissedRx)
	p.Outbound(3, 1, 9, 1500, OutboundDropTooBig)
	p.OutboundComponents(3, model.MessageComponents{component(model.BroadcastNEM, 1, 20)}, OutboundAcceptGood)

	tally := p.Tally()
	require.EqualValues(t, 1, tally.InboundCount(InboundAcceptGood))
	require.EqualValues(t, 1, tally.InboundCount(InboundDropSlotMissedRx))
	require.EqualValues(t, 1, tally.OutboundCount(OutboundDropTooBig))
	require.EqualValues(t, 1, tally.OutboundCount(OutboundAcceptGood))

	m := p.metrics.Load()
	require.NotNil(t, m)
	require.Equal(t, 2.0, testutil.ToFloat64(m.inPackets[castUnicast][InboundAcceptGood]))
	require.Equal(t, 1.0, testutil.ToFloat64(m.inPackets[castBroadcast][InboundAcceptGood]))
	require.Equal(t, 150.0, testutil.ToFloat64(m.inBytes[castUnicast][InboundAcceptGood]))
	require.Equal(t, 1500.0, testutil.ToFloat64(m.outBytes[castUnicast][OutboundDropTooBig]))

	v, ok := m.rx[castUnicast].Value([]string{"3", "1", "0"}, "accept_good")
	require.True(t, ok)
	require.Equal(t, 100.0, v)
	v, ok = m.rx[castUnicast].Value([]string{"3", "1", "3"}, "accept_good")
	require.True(t, ok)
	require.Equal(t, 50.0, v)
	v, ok = m.rx[castUnicast].Value([]string{"3", "1", "1"}, "drop_slot_missed_rx")
	require.True(t, ok)
	require.Equal(t, 40.0, v)
	v, ok = m.rx[castBroadcast].Value([]string{"3", "1", "0"}, "accept_good")
	require.True(t, ok)
	require.Equal(t, 10.0, v)
	v, ok = m.tx[castUnicast].Value([]string{"3", "1", "4"}, "drop_too_big")
	require.True(t, ok)
	require.Equal(t, 1500.0, v)
	v, ok = m.tx[castBroadcast].Value([]string{"3", "65535", "0"}, "accept_good")
	require.True(t, ok)
	require.Equal(t, 20.0, v)

	n, err := testutil.GatherAndCount(reg.Gatherer(), StatRxUnicastBytes+"_accept_good")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStatusPublisherBeforeInitialize(t *testing.T) {
	p := NewStatusPublisher(3)
	p.Inbound(1, 3, 0, 10, InboundAcceptGood)
	p.Inbound(1, 3, 0, 10, InboundAction(42))
	require.EqualValues(t, 1, p.Tally().Total())
}

func TestStatusPublisherSharedRegistry(t *testing.T) {
	prom := prometheus.NewRegistry()
	a := NewStatusPublisher(1)
	b := NewStatusPublisher(2)
	require.NoError(t, a.Initialize(registrar.New(prom)))
	require.NoError(t, b.Initialize(registrar.New(prom)))

	a.Inbound(5, 1, 0, 10, InboundAcceptGood)
	b.Inbound(5, 2, 0, 10, InboundAcceptGood)

	n, err := testutil.GatherAndCount(prom, StatRxUnicastBytes+"_accept_good")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestStatusPublisherConcurrentPaths(t *testing.T) {
	p, _ := newInitializedPublisher(t)
	const workers, perWorker = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p.InboundComponent(model.NEMID(w), component(3, model.Priority(i%9), 10), InboundAcceptGood)
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p.Outbound(3, model.NEMID(w), model.Priority(i%9), 10, OutboundDropOverflow)
			}
		}(w)
	}
	wg.Wait()

	tally := p.Tally()
	require.EqualValues(t, workers*perWorker, tally.InboundCount(InboundAcceptGood))
	require.EqualValues(t, workers*perWorker, tally.OutboundCount(OutboundDropOverflow))

	m := p.metrics.Load()
	require.Equal(t, float64(workers*perWorker), testutil.ToFloat64(m.inPackets[castUnicast][InboundAcceptGood]))
	require.Equal(t, float64(workers*perWorker*10), testutil.ToFloat64(m.outBytes[castUnicast][OutboundDropOverflow]))
}

func TestNoopPublisher(t *testing.T) {
	var p PacketStatusPublisher = NoopPublisher{}
	p.Inbound(1, 2, 0, 10, InboundAcceptGood)
	p.OutboundComponents(1, nil, OutboundAcceptGood)
}
