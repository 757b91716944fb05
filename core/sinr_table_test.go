package core

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"github.com/signalsfoundry/tdma-radio-model/timectrl"
)

const (
	testFreq  model.FrequencyHz = 2_400_000_000
	testNoise                   = 1e-13
)

func newInitializedTable(t *testing.T, overrides map[string]string) (*SINRTable, *registrar.Registry) {
	t.Helper()
	reg := registrar.New(prometheus.NewRegistry())
	clock := timectrl.NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	table := NewSINRTable(1, WithClock(clock))
	if err := table.Initialize(reg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	update, err := reg.Resolve(overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	table.Configure(update)
	return table, reg
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSINRTableTwoSourceScenario(t *testing.T) {
	table, _ := newInitializedTable(t, nil)

	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 0, testFreq, 2e-9, testNoise, testNoise)

	a, ok := table.SINR(0, testFreq, 10)
	if !ok {
		t.Fatalf("expected SINR for source A")
	}
	b, ok := table.SINR(0, testFreq, 20)
	if !ok {
		t.Fatalf("expected SINR for source B")
	}
	if !almostEqual(a, 1e-9/(1e-13+2e-9), 1e-9) {
		t.Fatalf("SINR(A) = %v, want ~0.49975", a)
	}
	if !almostEqual(b, 2e-9/(1e-13+1e-9), 1e-9) {
		t.Fatalf("SINR(B) = %v, want ~1.9998", b)
	}
	if a >= table.Threshold() || b < table.Threshold() {
		t.Fatalf("threshold %v does not separate A=%v and B=%v", table.Threshold(), a, b)
	}
}

func TestSINRTableInterferenceMonotonic(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)

	prev := math.Inf(1)
	for _, bPower := range []float64{1e-12, 1e-11, 1e-10, 1e-9, 1e-8} {
		table.Update(20, 0, testFreq, bPower, testNoise, testNoise)
		got, ok := table.SINR(0, testFreq, 10)
		if !ok {
			t.Fatalf("missing SINR for A")
		}
		if got >= prev {
			t.Fatalf("SINR(A) = %v with B=%v, want < %v", got, bPower, prev)
		}
		prev = got
	}
}

func TestSINRTableUpdateReplacesContribution(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(10, 0, testFreq, 4e-9, testNoise, testNoise)

	if got := table.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	got, _ := table.SINR(0, testFreq, 10)
	if !almostEqual(got, 4e-9/testNoise, 1e-3) {
		t.Fatalf("SINR = %v, want %v", got, 4e-9/testNoise)
	}
}

func TestSINRTableFrequenciesDoNotInterfere(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 0, testFreq+1, 1e-6, testNoise, testNoise)

	got, _ := table.SINR(0, testFreq, 10)
	if !almostEqual(got, 1e-9/testNoise, 1e-3) {
		t.Fatalf("SINR = %v, want noise-limited %v", got, 1e-9/testNoise)
	}
}

func TestSINRTableSensitivityActsAsFloor(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, 1e-13, 1e-10)

	got, _ := table.SINR(0, testFreq, 10)
	if !almostEqual(got, 10, 1e-9) {
		t.Fatalf("SINR = %v, want 10", got)
	}
}

func TestSINRTableResetAll(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 1, testFreq, 1e-9, testNoise, testNoise)

	table.ResetAll()

	if got := table.Len(); got != 0 {
		t.Fatalf("Len() = %d after ResetAll, want 0", got)
	}
	for _, q := range []struct {
		antenna model.AntennaIndex
		src     model.NEMID
	}{{0, 10}, {1, 20}} {
		if _, ok := table.SINR(q.antenna, testFreq, q.src); ok {
			t.Fatalf("SINR(%d, %d) still present after ResetAll", q.antenna, q.src)
		}
	}

	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	if _, ok := table.SINR(0, testFreq, 10); !ok {
		t.Fatalf("SINR absent after fresh update")
	}
}

func TestSINRTableResetSingleAntenna(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 1, testFreq, 1e-9, testNoise, testNoise)
	table.Update(30, 1, testFreq, 3e-9, testNoise, testNoise)
	before, _ := table.SINR(1, testFreq, 20)

	table.Reset(0)
	table.Reset(7)

	if _, ok := table.SINR(0, testFreq, 10); ok {
		t.Fatalf("antenna 0 contribution survived Reset(0)")
	}
	after, ok := table.SINR(1, testFreq, 20)
	if !ok || after != before {
		t.Fatalf("antenna 1 SINR = (%v, %v), want (%v, true)", after, ok, before)
	}
}

func TestSINRTableNegativePowersClamped(t *testing.T) {
	table, reg := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, -1, testNoise, testNoise)

	got, ok := table.SINR(0, testFreq, 10)
	if !ok || got != 0 {
		t.Fatalf("SINR = (%v, %v), want (0, true)", got, ok)
	}
	if v := sampleCount(t, reg, "clamped"); v != 1 {
		t.Fatalf("clamped samples = %v, want 1", v)
	}
}

func TestSINRTableNonFiniteSamplesIgnored(t *testing.T) {
	table, reg := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, math.NaN(), testNoise, testNoise)
	table.Update(10, 0, testFreq, 1e-9, math.Inf(1), testNoise)

	if got := table.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
	if v := sampleCount(t, reg, "ignored"); v != 2 {
		t.Fatalf("ignored samples = %v, want 2", v)
	}
}

func TestSINRTableZeroDenominator(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, 0, 0)
	got, _ := table.SINR(0, testFreq, 10)
	if !math.IsInf(got, 1) {
		t.Fatalf("SINR = %v, want +Inf", got)
	}
	entries := table.Snapshot()
	if len(entries) != 1 || entries[0].SINRdB != MaxDB || entries[0].Quality != LinkQualityExcellent {
		t.Fatalf("Snapshot() = %+v", entries)
	}
}

func TestSINRTableAutoCreateDisabled(t *testing.T) {
	table, reg := newInitializedTable(t, map[string]string{
		ParamAutoCreateAntennas: "false",
		ParamAntennas:           "2",
	})

	table.Update(10, 1, testFreq, 1e-9, testNoise, testNoise)
	table.Update(10, 2, testFreq, 1e-9, testNoise, testNoise)

	if _, ok := table.SINR(1, testFreq, 10); !ok {
		t.Fatalf("configured antenna 1 rejected sample")
	}
	if _, ok := table.SINR(2, testFreq, 10); ok {
		t.Fatalf("unconfigured antenna 2 accepted sample")
	}
	if v := sampleCount(t, reg, "ignored"); v != 1 {
		t.Fatalf("ignored samples = %v, want 1", v)
	}
}

func TestSINRTableConfigureIdempotent(t *testing.T) {
	table, reg := newInitializedTable(t, nil)
	update, err := reg.Resolve(map[string]string{ParamThreshold: "3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	table.Configure(update)
	table.Configure(update)

	if got := table.ThresholdDB(); got != 3 {
		t.Fatalf("ThresholdDB() = %v, want 3", got)
	}
	if got := table.Threshold(); !almostEqual(got, DBToLinear(3), 1e-12) {
		t.Fatalf("Threshold() = %v", got)
	}

	table.Configure(registrar.ConfigurationUpdate{{Name: "unknown.param", Value: 1.0}})
	table.Configure(registrar.ConfigurationUpdate{{Name: ParamThreshold, Value: "bogus"}})
	if got := table.ThresholdDB(); got != 3 {
		t.Fatalf("ThresholdDB() = %v after invalid items, want 3", got)
	}
}

func TestSINRTableConfigureBeforeInitialize(t *testing.T) {
	table := NewSINRTable(1)
	table.Configure(registrar.ConfigurationUpdate{{Name: ParamThreshold, Value: 6.0}})
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)

	if got := table.ThresholdDB(); got != 6 {
		t.Fatalf("ThresholdDB() = %v, want 6", got)
	}
	if _, ok := table.SINR(0, testFreq, 10); !ok {
		t.Fatalf("uninitialised table dropped sample")
	}
}

func TestSINRTableInitializeTwiceFails(t *testing.T) {
	reg := registrar.New(prometheus.NewRegistry())
	if err := NewSINRTable(1).Initialize(reg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := NewSINRTable(2).Initialize(reg); err == nil {
		t.Fatalf("expected duplicate parameter error")
	}
}

func TestSINRTableStatistics(t *testing.T) {
	table, reg := newInitializedTable(t, nil)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.ResetAll()

	mfs, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	samples := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != StatSINRTable+"_samples" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "src" {
					samples[lp.GetValue()] = m.GetGauge().GetValue()
				}
			}
		}
	}
	if samples["10"] != 2 || samples["20"] != 1 {
		t.Fatalf("samples per source = %v, want 10:2 20:1", samples)
	}
}

func TestSINRTableStatisticsDisabled(t *testing.T) {
	table, reg := newInitializedTable(t, map[string]string{ParamEnable: "off"})
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)

	n, err := testutil.GatherAndCount(reg.Gatherer(), StatSINRTable+"_sinr_db")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("sinr_db series = %d, want 0", n)
	}
	if _, ok := table.SINR(0, testFreq, 10); !ok {
		t.Fatalf("disabled statistics should not affect SINR")
	}
}

func TestSINRTableSnapshotOrdering(t *testing.T) {
	table, _ := newInitializedTable(t, nil)
	table.Update(30, 1, testFreq, 1e-9, testNoise, testNoise)
	table.Update(20, 0, testFreq+5, 1e-9, testNoise, testNoise)
	table.Update(10, 0, testFreq, 1e-9, testNoise, testNoise)
	table.Update(5, 0, testFreq, 1e-9, testNoise, testNoise)

	entries := table.Snapshot()
	want := []model.NEMID{5, 10, 20, 30}
	if len(entries) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d", len(entries), len(want))
	}
	for i, src := range want {
		if entries[i].Source != src {
			t.Fatalf("Snapshot()[%d].Source = %d, want %d", i, entries[i].Source, src)
		}
	}
	if entries[0].Updated.IsZero() {
		t.Fatalf("Snapshot entry missing timestamp")
	}
}

func TestSINRTableConcurrentAccess(t *testing.T) {
	table, _ := newInitializedTable(t, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				antenna := model.AntennaIndex(i % 2)
				table.Update(model.NEMID(w), antenna, testFreq, 1e-9, testNoise, testNoise)
				table.SINR(antenna, testFreq, model.NEMID(w))
				if i%50 == 0 {
					table.Reset(antenna)
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			table.ResetAll()
			table.Snapshot()
		}
	}()
	wg.Wait()

	table.ResetAll()
	if got := table.Len(); got != 0 {
		t.Fatalf("Len() = %d after final ResetAll", got)
	}
}

func sampleCount(t *testing.T, reg *registrar.Registry, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != StatSamplesTotal {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
