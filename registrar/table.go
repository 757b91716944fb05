package registrar

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrInvalidTable indicates a statistic table definition was rejected.
var ErrInvalidTable = errors.New("invalid statistic table")

var identifierRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableOptions describes the shape of a StatisticTable.
type TableOptions struct {
	// KeyLabels name the key columns identifying a row.
	KeyLabels []string
	// Columns name the numeric value columns.
	Columns []string
	// MaxRows caps the number of rows; 0 means unlimited. Inserts beyond the
	// cap are dropped and counted.
	MaxRows int
}

// TableRow is a copy of one table row.
type TableRow struct {
	Keys   []string
	Values []float64
}

// StatisticTable is a keyed table of float columns. It is safe for concurrent
// use and exports every cell as a Prometheus gauge named <table>_<column>
// labelled with the key columns.
type StatisticTable struct {
	name      string
	help      string
	keyLabels []string
	columns   []string
	colIndex  map[string]int
	maxRows   int
	descs     []*prometheus.Desc

	mu   sync.RWMutex
	rows map[string]*TableRow

	dropped atomic.Uint64
}

var _ prometheus.Collector = (*StatisticTable)(nil)

// NewStatisticTable validates opts and returns an empty table.
func NewStatisticTable(name, help string, opts TableOptions) (*StatisticTable, error) {
	if !identifierRE.MatchString(name) {
		return nil, fmt.Errorf("%w: bad name %q", ErrInvalidTable, name)
	}
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrInvalidTable, name)
	}
	if opts.MaxRows < 0 {
		return nil, fmt.Errorf("%w: %s has negative MaxRows", ErrInvalidTable, name)
	}

	seen := make(map[string]bool)
	for _, l := range opts.KeyLabels {
		if !identifierRE.MatchString(l) || seen[l] {
			return nil, fmt.Errorf("%w: bad or duplicate key label %q in %s", ErrInvalidTable, l, name)
		}
		seen[l] = true
	}

	t := &StatisticTable{
		name:      name,
		help:      help,
		keyLabels: append([]string(nil), opts.KeyLabels...),
		columns:   append([]string(nil), opts.Columns...),
		colIndex:  make(map[string]int, len(opts.Columns)),
		maxRows:   opts.MaxRows,
		rows:      make(map[string]*TableRow),
	}
	for i, c := range opts.Columns {
		if !identifierRE.MatchString(c) {
			return nil, fmt.Errorf("%w: bad column %q in %s", ErrInvalidTable, c, name)
		}
		if _, dup := t.colIndex[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q in %s", ErrInvalidTable, c, name)
		}
		t.colIndex[c] = i
		t.descs = append(t.descs, prometheus.NewDesc(
			name+"_"+c,
			fmt.Sprintf("%s (column %s)", help, c),
			t.keyLabels,
			nil,
		))
	}
	return t, nil
}

// Name returns the table name.
func (t *StatisticTable) Name() string { return t.name }

// Columns returns the value column names.
func (t *StatisticTable) Columns() []string { return append([]string(nil), t.columns...) }

// KeyLabels returns the key column names.
func (t *StatisticTable) KeyLabels() []string { return append([]string(nil), t.keyLabels...) }

// Update applies fn to the row identified by keys, creating a zeroed row if
// needed. It returns false when keys do not match the key labels or the table
// is full.
func (t *StatisticTable) Update(keys []string, fn func(values []float64)) bool {
	if len(keys) != len(t.keyLabels) {
		return false
	}
	id := rowID(keys)

	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok {
		if t.maxRows > 0 && len(t.rows) >= t.maxRows {
			t.dropped.Add(1)
			return false
		}
		row = &TableRow{
			Keys:   append([]string(nil), keys...),
			Values: make([]float64, len(t.columns)),
		}
		t.rows[id] = row
	}
	fn(row.Values)
	return true
}

// Set replaces the values of the row identified by keys. Missing trailing
// values are zero; extra values are ignored.
func (t *StatisticTable) Set(keys []string, values ...float64) bool {
	return t.Update(keys, func(row []float64) {
		for i := range row {
			if i < len(values) {
				row[i] = values[i]
			} else {
				row[i] = 0
			}
		}
	})
}

// Add adds delta to one column of the row identified by keys.
func (t *StatisticTable) Add(keys []string, column string, delta float64) bool {
	idx, ok := t.colIndex[column]
	if !ok {
		return false
	}
	return t.Update(keys, func(row []float64) {
		row[idx] += delta
	})
}

// Value returns one cell.
func (t *StatisticTable) Value(keys []string, column string) (float64, bool) {
	idx, ok := t.colIndex[column]
	if !ok {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[rowID(keys)]
	if !ok {
		return 0, false
	}
	return row.Values[idx], true
}

// Delete removes the row identified by keys.
func (t *StatisticTable) Delete(keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, rowID(keys))
}

// DeleteMatching removes every row whose key column label equals value and
// returns the number removed.
func (t *StatisticTable) DeleteMatching(label, value string) int {
	idx := -1
	for i, l := range t.keyLabels {
		if l == label {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, row := range t.rows {
		if row.Keys[idx] == value {
			delete(t.rows, id)
			n++
		}
	}
	return n
}

// Clear removes every row.
func (t *StatisticTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[string]*TableRow)
}

// Len returns the number of rows.
func (t *StatisticTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Dropped returns how many row inserts were rejected because the table was
// full.
func (t *StatisticTable) Dropped() uint64 { return t.dropped.Load() }

// Rows returns a copy of every row ordered by key.
func (t *StatisticTable) Rows() []TableRow {
	t.mu.RLock()
	out := make([]TableRow, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, TableRow{
			Keys:   append([]string(nil), row.Keys...),
			Values: append([]float64(nil), row.Values...),
		})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return lessKeys(out[i].Keys, out[j].Keys) })
	return out
}

// Describe implements prometheus.Collector.
func (t *StatisticTable) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range t.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (t *StatisticTable) Collect(ch chan<- prometheus.Metric) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, row := range t.rows {
		for i, d := range t.descs {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, row.Values[i], row.Keys...)
		}
	}
}

func rowID(keys []string) string {
	return strings.Join(keys, "\x00")
}

// lessKeys orders keys column by column, numerically when both cells are
// unsigned integers.
func lessKeys(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		an, aerr := strconv.ParseUint(a[i], 10, 64)
		bn, berr := strconv.ParseUint(b[i], 10, 64)
		if aerr == nil && berr == nil {
			return an < bn
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}
