package collector

import (
	"context"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fetch helpers shared by strategies
// ─────────────────────────────────────────────────────────────────────────────

// ptr boxes v for strategy return values.
func ptr(v float64) *float64 { return &v }

// scalar reads one numeric OID. ok is false when the agent has no value or
// the value is not numeric.
func scalar(ctx context.Context, s poller.Session, oid string) (float64, bool, error) {
	v, err := s.Get(ctx, oid)
	if err != nil {
		return 0, false, err
	}
	f, ok := v.Float()
	return f, ok, nil
}

// column walks a table column and returns numeric cells keyed by row suffix,
// preserving walk order in rows.
type column struct {
	rows   []string
	values map[string]float64
}

func walkColumn(ctx context.Context, s poller.Session, oid string) (column, error) {
	entries, err := s.Walk(ctx, oid)
	col := column{values: make(map[string]float64, len(entries))}
	for _, e := range entries {
		f, ok := e.Value.Float()
		if !ok {
			continue
		}
		col.rows = append(col.rows, e.Suffix)
		col.values[e.Suffix] = f
	}
	return col, err
}

// walkStrings walks a column of text cells keyed by row suffix.
func walkStrings(ctx context.Context, s poller.Session, oid string) (map[string]string, error) {
	entries, err := s.Walk(ctx, oid)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Suffix] = e.Value.String()
	}
	return out, err
}

func (c column) slice() []float64 {
	out := make([]float64, 0, len(c.rows))
	for _, r := range c.rows {
		out = append(out, c.values[r])
	}
	return out
}

// nonZero drops zero cells. Some vendors report 0 for empty slots.
func nonZero(data []float64) []float64 {
	out := data[:0:0]
	for _, v := range data {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// tableMean walks oid and returns the average of its numeric cells.
func tableMean(ctx context.Context, s poller.Session, oid string, skipZero bool) (*float64, error) {
	col, err := walkColumn(ctx, s, oid)
	if err != nil {
		return nil, err
	}
	data := col.slice()
	if skipZero {
		data = nonZero(data)
	}
	if len(data) == 0 {
		return nil, nil
	}
	m, err := stats.Mean(data)
	if err != nil {
		return nil, nil
	}
	return ptr(m), nil
}

// tableMax walks oid and returns the largest numeric cell.
func tableMax(ctx context.Context, s poller.Session, oid string, skipZero bool) (*float64, error) {
	col, err := walkColumn(ctx, s, oid)
	if err != nil {
		return nil, err
	}
	data := col.slice()
	if skipZero {
		data = nonZero(data)
	}
	if len(data) == 0 {
		return nil, nil
	}
	m, err := stats.Max(data)
	if err != nil {
		return nil, nil
	}
	return ptr(m), nil
}

// sumColumn walks oid and returns the sum of its numeric cells.
func sumColumn(ctx context.Context, s poller.Session, oid string) (float64, bool, error) {
	col, err := walkColumn(ctx, s, oid)
	if err != nil {
		return 0, false, err
	}
	data := col.slice()
	if len(data) == 0 {
		return 0, false, nil
	}
	sum, err := stats.Sum(data)
	if err != nil {
		return 0, false, nil
	}
	return sum, true, nil
}

// lastIndex returns the final sub-identifier of an OID suffix as an int.
func lastIndex(suffix string) (int, bool) {
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[i+1:]
	}
	n, err := strconv.Atoi(suffix)
	return n, err == nil
}

// sameOID compares two OIDs ignoring a leading dot.
func sameOID(a, b string) bool {
	return decoder.NormalizeOID(a) == decoder.NormalizeOID(b)
}
