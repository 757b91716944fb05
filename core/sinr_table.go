package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/tdma-radio-model/internal/logging"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"github.com/signalsfoundry/tdma-radio-model/timectrl"
	"golang.org/x/time/rate"
)

// Configuration parameters registered by SINRTable.Initialize.
const (
	ParamEnable             = "sinrtable.enable"
	ParamThreshold          = "sinrtable.threshold"
	ParamAntennas           = "sinrtable.antennas"
	ParamAutoCreateAntennas = "sinrtable.autocreateantennas"
)

// Statistics registered by SINRTable.Initialize.
const (
	StatSINRTable      = "sinr_table"
	StatSamplesTotal   = "sinrtable_samples_total"
	sinrTableMaxRows   = 4096
	sampleOutcomeOK    = "accepted"
	sampleOutcomeClamp = "clamped"
	sampleOutcomeSkip  = "ignored"
)

// Column order of the sinr_table statistic.
const (
	colRxPowerDBm = iota
	colNoiseFloorDBm
	colSINRdB
	colSamples
	colAvgSINRdB
	colAvgNoiseFloorDBm
	colTimestamp
)

var sinrTableColumns = []string{
	"rx_power_dbm",
	"noise_floor_dbm",
	"sinr_db",
	"samples",
	"avg_sinr_db",
	"avg_noise_floor_dbm",
	"timestamp_seconds",
}

// SINREntry is a derived view of one live contribution.
type SINREntry struct {
	Antenna                      model.AntennaIndex
	Frequency                    model.FrequencyHz
	Source                       model.NEMID
	RxPowerMilliWatt             float64
	NoiseFloorMilliWatt          float64
	ReceiverSensitivityMilliWatt float64
	SINR                         float64
	SINRdB                       float64
	Quality                      LinkQuality
	Updated                      time.Time
}

// contribution is the latest sample from one source at one antenna and
// frequency.
type contribution struct {
	rxPower     float64
	noiseFloor  float64
	sensitivity float64
	updated     time.Time
}

// channel holds the live contributions sharing one antenna and frequency.
type channel map[model.NEMID]*contribution

// sinr derives the SINR of src against every other contribution on the
// channel.
func (ch channel) sinr(src model.NEMID) (float64, bool) {
	c, ok := ch[src]
	if !ok {
		return 0, false
	}
	interference := 0.0
	for other, oc := range ch {
		if other != src {
			interference += oc.rxPower
		}
	}
	return ComputeSINR(c.rxPower, EffectiveNoise(c.noiseFloor, c.sensitivity), interference), true
}

type tableConfig struct {
	enabled     bool
	thresholdDB float64
	antennas    int
	autoCreate  bool
}

func defaultTableConfig() tableConfig {
	return tableConfig{
		enabled:     true,
		thresholdDB: 0,
		antennas:    1,
		autoCreate:  true,
	}
}

// SINRTable tracks the live power contributions seen by one NEM, per receive
// antenna and frequency, and derives per-source SINR from them. Every other
// contribution on the same antenna and frequency counts as interference.
//
// Contributions never expire on their own; the slot timer calls Reset or
// ResetAll at measurement window boundaries.
type SINRTable struct {
	nem   model.NEMID
	clock timectrl.SimClock
	log   logging.Logger
	warn  logging.Logger

	mu       sync.RWMutex
	cfg      tableConfig
	antennas map[model.AntennaIndex]map[model.FrequencyHz]channel

	stats   *registrar.StatisticTable
	samples map[string]prometheus.Counter
}

// SINRTableOption customises SINRTable construction.
type SINRTableOption func(*SINRTable)

// WithClock sets the clock used to stamp samples.
func WithClock(c timectrl.SimClock) SINRTableOption {
	return func(t *SINRTable) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the table logger.
func WithLogger(l logging.Logger) SINRTableOption {
	return func(t *SINRTable) {
		t.log = logging.OrNoop(l)
	}
}

// NewSINRTable constructs a table for the receiving NEM nem.
func NewSINRTable(nem model.NEMID, opts ...SINRTableOption) *SINRTable {
	t := &SINRTable{
		nem:      nem,
		clock:    timectrl.WallClock{},
		log:      logging.Noop(),
		cfg:      defaultTableConfig(),
		antennas: make(map[model.AntennaIndex]map[model.FrequencyHz]channel),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logging.Int("nem", int(nem)))
	t.warn = logging.Throttled(t.log, rate.Every(time.Second), 5)
	return t
}

// NEM returns the receiving NEM the table was built for.
func (t *SINRTable) NEM() model.NEMID { return t.nem }

// Initialize registers the table's configuration parameters and statistics.
func (t *SINRTable) Initialize(reg registrar.Registrar) error {
	cfg := reg.Configuration()
	if err := cfg.RegisterBool(ParamEnable, registrar.BoolOptions{
		Default:     true,
		Description: "Publish per-source SINR statistics.",
	}); err != nil {
		return fmt.Errorf("register %s: %w", ParamEnable, err)
	}
	if err := cfg.RegisterNumeric(ParamThreshold, registrar.NumericOptions{
		Default:     0,
		Min:         -100,
		Max:         100,
		Description: "SINR acceptance threshold in dB.",
	}); err != nil {
		return fmt.Errorf("register %s: %w", ParamThreshold, err)
	}
	if err := cfg.RegisterNumeric(ParamAntennas, registrar.NumericOptions{
		Default:     1,
		Min:         1,
		Max:         256,
		Description: "Number of receive antennas configured up front.",
	}); err != nil {
		return fmt.Errorf("register %s: %w", ParamAntennas, err)
	}
	if err := cfg.RegisterBool(ParamAutoCreateAntennas, registrar.BoolOptions{
		Default:     true,
		Description: "Track samples on antennas beyond the configured count.",
	}); err != nil {
		return fmt.Errorf("register %s: %w", ParamAutoCreateAntennas, err)
	}

	stats := reg.Statistics()
	table, err := stats.RegisterTable(StatSINRTable, "Per-source SINR measurements", registrar.TableOptions{
		KeyLabels: []string{"nem", "antenna", "frequency_hz", "src"},
		Columns:   sinrTableColumns,
		MaxRows:   sinrTableMaxRows,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", StatSINRTable, err)
	}
	samples, err := stats.RegisterCounterVec(StatSamplesTotal,
		"Power samples handed to the SINR table, by outcome.", "nem", "outcome")
	if err != nil {
		return fmt.Errorf("register %s: %w", StatSamplesTotal, err)
	}

	nem := t.nem.String()
	counters := map[string]prometheus.Counter{
		sampleOutcomeOK:    samples.WithLabelValues(nem, sampleOutcomeOK),
		sampleOutcomeClamp: samples.WithLabelValues(nem, sampleOutcomeClamp),
		sampleOutcomeSkip:  samples.WithLabelValues(nem, sampleOutcomeSkip),
	}

	t.mu.Lock()
	t.stats = table
	t.samples = counters
	t.mu.Unlock()
	return nil
}

// Configure applies resolved configuration values. It is idempotent and may
// be called before any Update. Unknown names are skipped.
func (t *SINRTable) Configure(update registrar.ConfigurationUpdate) {
	ctx := context.Background()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range update {
		switch item.Name {
		case ParamEnable:
			if v, ok := item.Bool(); ok {
				t.cfg.enabled = v
				continue
			}
		case ParamAutoCreateAntennas:
			if v, ok := item.Bool(); ok {
				t.cfg.autoCreate = v
				continue
			}
		case ParamThreshold:
			if v, ok := item.Float64(); ok && finite(v) {
				t.cfg.thresholdDB = v
				continue
			}
		case ParamAntennas:
			if v, ok := item.Float64(); ok && finite(v) {
				t.cfg.antennas = int(math.Max(1, math.Round(v)))
				continue
			}
		default:
			t.log.Debug(ctx, "ignoring unknown configuration item", logging.String("name", item.Name))
			continue
		}
		t.log.Warn(ctx, "ignoring configuration item with unexpected value type",
			logging.String("name", item.Name),
			logging.String("type", fmt.Sprintf("%T", item.Value)),
		)
	}

	t.log.Info(ctx, "sinr table configured",
		logging.Bool("enabled", t.cfg.enabled),
		logging.Float64("threshold_db", t.cfg.thresholdDB),
		logging.Int("antennas", t.cfg.antennas),
		logging.Bool("auto_create_antennas", t.cfg.autoCreate),
	)
}

// Update records the latest sample from src at (antenna, frequency) and
// refreshes the SINR statistic for that source. Negative powers are clamped to
// zero; non-finite samples and samples on unconfigured antennas (when
// auto-creation is off) are dropped. Update never fails.
func (t *SINRTable) Update(src model.NEMID, antenna model.AntennaIndex, frequency model.FrequencyHz,
	rxPowerMW, noiseFloorMW, receiverSensitivityMW float64) {
	ctx := context.Background()

	if !finite(rxPowerMW) || !finite(noiseFloorMW) || !finite(receiverSensitivityMW) {
		t.count(sampleOutcomeSkip)
		t.warn.Warn(ctx, "dropping non-finite power sample",
			logging.Int("src", int(src)),
			logging.Int("antenna", int(antenna)),
			logging.Uint64("frequency_hz", uint64(frequency)),
		)
		return
	}

	clamped := false
	for _, v := range []*float64{&rxPowerMW, &noiseFloorMW, &receiverSensitivityMW} {
		if *v < 0 {
			*v = 0
			clamped = true
		}
	}

	now := t.clock.Now()
	if !t.upsert(src, antenna, frequency, rxPowerMW, noiseFloorMW, receiverSensitivityMW, now) {
		t.count(sampleOutcomeSkip)
		t.warn.Warn(ctx, "dropping sample for unconfigured antenna",
			logging.Int("src", int(src)),
			logging.Int("antenna", int(antenna)),
		)
		return
	}

	if clamped {
		t.count(sampleOutcomeClamp)
		t.warn.Warn(ctx, "clamped negative power sample to zero",
			logging.Int("src", int(src)),
			logging.Int("antenna", int(antenna)),
			logging.Uint64("frequency_hz", uint64(frequency)),
		)
		return
	}
	t.count(sampleOutcomeOK)
}

func (t *SINRTable) upsert(src model.NEMID, antenna model.AntennaIndex, frequency model.FrequencyHz,
	rxPowerMW, noiseFloorMW, receiverSensitivityMW float64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	freqs, ok := t.antennas[antenna]
	if !ok {
		if !t.cfg.autoCreate && int(antenna) >= t.cfg.antennas {
			return false
		}
		freqs = make(map[model.FrequencyHz]channel)
		t.antennas[antenna] = freqs
	}
	ch, ok := freqs[frequency]
	if !ok {
		ch = make(channel)
		freqs[frequency] = ch
	}
	c, ok := ch[src]
	if !ok {
		c = &contribution{}
		ch[src] = c
	}
	c.rxPower = rxPowerMW
	c.noiseFloor = noiseFloorMW
	c.sensitivity = receiverSensitivityMW
	c.updated = now

	if t.cfg.enabled && t.stats != nil {
		sinr, _ := ch.sinr(src)
		t.publish(src, antenna, frequency, c, LinearToDB(sinr))
	}
	return true
}

// publish folds one sample into the statistics row for (antenna, frequency,
// src). Callers hold t.mu. A full statistics table drops the row silently.
func (t *SINRTable) publish(src model.NEMID, antenna model.AntennaIndex, frequency model.FrequencyHz,
	c *contribution, sinrDB float64) {
	keys := []string{t.nem.String(), antenna.String(), frequency.String(), src.String()}
	rxDBm := MilliwattsToDBm(c.rxPower)
	nfDBm := MilliwattsToDBm(c.noiseFloor)
	stamp := float64(c.updated.UnixNano()) / 1e9

	t.stats.Update(keys, func(row []float64) {
		n := row[colSamples] + 1
		row[colRxPowerDBm] = rxDBm
		row[colNoiseFloorDBm] = nfDBm
		row[colSINRdB] = sinrDB
		row[colSamples] = n
		row[colAvgSINRdB] += (sinrDB - row[colAvgSINRdB]) / n
		row[colAvgNoiseFloorDBm] += (nfDBm - row[colAvgNoiseFloorDBm]) / n
		row[colTimestamp] = stamp
	})
}

// SINR returns the linear SINR of src at (antenna, frequency) derived from the
// live contributions, or false when src has no live contribution there.
func (t *SINRTable) SINR(antenna model.AntennaIndex, frequency model.FrequencyHz, src model.NEMID) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ch, ok := t.antennas[antenna][frequency]
	if !ok {
		return 0, false
	}
	return ch.sinr(src)
}

// Snapshot returns every live contribution with its derived SINR, ordered by
// antenna, frequency and source.
func (t *SINRTable) Snapshot() []SINREntry {
	t.mu.RLock()
	out := make([]SINREntry, 0)
	for antenna, freqs := range t.antennas {
		for frequency, ch := range freqs {
			for src, c := range ch {
				sinr, _ := ch.sinr(src)
				sinrDB := LinearToDB(sinr)
				out = append(out, SINREntry{
					Antenna:                      antenna,
					Frequency:                    frequency,
					Source:                       src,
					RxPowerMilliWatt:             c.rxPower,
					NoiseFloorMilliWatt:          c.noiseFloor,
					ReceiverSensitivityMilliWatt: c.sensitivity,
					SINR:                         sinr,
					SINRdB:                       sinrDB,
					Quality:                      ClassifySINR(sinrDB),
					Updated:                      c.updated,
				})
			}
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Antenna != b.Antenna {
			return a.Antenna < b.Antenna
		}
		if a.Frequency != b.Frequency {
			return a.Frequency < b.Frequency
		}
		return a.Source < b.Source
	})
	return out
}

// Len returns the number of live contributions across all antennas.
func (t *SINRTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, freqs := range t.antennas {
		for _, ch := range freqs {
			n += len(ch)
		}
	}
	return n
}

// Threshold returns the configured SINR acceptance threshold as a linear ratio.
func (t *SINRTable) Threshold() float64 {
	return DBToLinear(t.ThresholdDB())
}

// ThresholdDB returns the configured SINR acceptance threshold in dB.
func (t *SINRTable) ThresholdDB() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.thresholdDB
}

// Reset removes every contribution on antenna. Statistics history is kept.
func (t *SINRTable) Reset(antenna model.AntennaIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.antennas, antenna)
}

// ResetAll removes every contribution on every antenna.
func (t *SINRTable) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.antennas = make(map[model.AntennaIndex]map[model.FrequencyHz]channel)
}

func (t *SINRTable) count(outcome string) {
	t.mu.RLock()
	c := t.samples[outcome]
	t.mu.RUnlock()
	if c != nil {
		c.Inc()
	}
}

