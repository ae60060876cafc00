package collector_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// Value helpers
// ─────────────────────────────────────────────────────────────────────────────

func uv(n uint64) decoder.Value { return decoder.Value{Kind: decoder.KindUnsigned, Uint: n} }
func iv(n int64) decoder.Value { return decoder.Value{Kind: decoder.KindInteger, Int: n} }
func sv(v string) decoder.Value { return decoder.Value{Kind: decoder.KindString, Str: v} }

// ─────────────────────────────────────────────────────────────────────────────
// mockSession — agent backed by a flat OID → value map
// ─────────────────────────────────────────────────────────────────────────────

type mockSession struct {
	mu        sync.Mutex
	values    map[string]decoder.Value
	failAfter int // calls allowed before every call returns a transport error; 0 = never
	calls     int
	closed    bool
}

func newSession(values map[string]decoder.Value) *mockSession {
	norm := make(map[string]decoder.Value, len(values))
	for k, v := range values {
		norm[decoder.NormalizeOID(k)] = v
	}
	return &mockSession{values: norm}
}

func (m *mockSession) set(oid string, v decoder.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[decoder.NormalizeOID(oid)] = v
}

func (m *mockSession) step() error {
	m.calls++
	if m.failAfter > 0 && m.calls > m.failAfter {
		return &poller.TransportError{Op: "get", Err: errors.New("request timeout")}
	}
	return nil
}

func (m *mockSession) Get(ctx context.Context, oid string) (decoder.Value, error) {
	vals, err := m.GetMultiple(ctx, []string{oid})
	if err != nil {
		return decoder.Absent, err
	}
	return vals[decoder.NormalizeOID(oid)], nil
}

func (m *mockSession) GetMultiple(_ context.Context, oids []string) (map[string]decoder.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.step(); err != nil {
		return nil, err
	}
	out := make(map[string]decoder.Value, len(oids))
	for _, oid := range oids {
		n := decoder.NormalizeOID(oid)
		if v, ok := m.values[n]; ok {
			out[n] = v
		} else {
			out[n] = decoder.Absent
		}
	}
	return out, nil
}

func (m *mockSession) Walk(_ context.Context, prefix string) ([]poller.WalkEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.step(); err != nil {
		return nil, err
	}
	root := decoder.NormalizeOID(prefix)
	var out []poller.WalkEntry
	for oid, v := range m.values {
		if suffix, ok := decoder.Suffix(oid, root); ok {
			out = append(out, poller.WalkEntry{OID: oid, Suffix: suffix, Value: v})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OID < out[b].OID })
	return out, nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// staticDialer hands out sess on every dial and counts the calls.
type staticDialer struct {
	mu    sync.Mutex
	sess  poller.Session
	err   error
	dials int
	last  poller.Target
}

func (d *staticDialer) Dial(_ context.Context, t poller.Target) (poller.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.last = t
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// memStore — in-memory collector.Store
// ─────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu          sync.Mutex
	devices     map[uint]models.Device
	ifaces      map[uint][]models.InterfaceInfo
	samples     []models.Sample
	operUpdates map[uint]int
	nextIfaceID uint
	insertErr   error // returned by InsertSamples when set
	pollUpdates int
}

func newStore(devs ...models.Device) *memStore {
	st := &memStore{
		devices:     make(map[uint]models.Device),
		ifaces:      make(map[uint][]models.InterfaceInfo),
		operUpdates: make(map[uint]int),
		nextIfaceID: 100,
	}
	for _, d := range devs {
		st.devices[d.ID] = d
	}
	return st
}

func (m *memStore) GetDevice(_ context.Context, id uint) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d: not found", id)
	}
	return &d, nil
}

func (m *memStore) UpdatePollResult(_ context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollUpdates++
	m.devices[d.ID] = *d
	return nil
}

func (m *memStore) device(id uint) models.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[id]
}

func (m *memStore) ListMonitored(_ context.Context, deviceID uint) ([]models.InterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.InterfaceInfo
	for _, i := range m.ifaces[deviceID] {
		if i.Monitored {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *memStore) UpsertInterfaces(_ context.Context, deviceID uint, ifaces []models.InterfaceInfo) ([]models.InterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InterfaceInfo, len(ifaces))
	for n, iface := range ifaces {
		iface.ID = m.nextIfaceID
		m.nextIfaceID++
		out[n] = iface
	}
	m.ifaces[deviceID] = out
	return out, nil
}

func (m *memStore) UpdateOperStatus(_ context.Context, interfaceID uint, status int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operUpdates[interfaceID] = status
	for dev, list := range m.ifaces {
		for n := range list {
			if list[n].ID == interfaceID {
				m.ifaces[dev][n].OperStatus = status
			}
		}
	}
	return nil
}

func (m *memStore) InsertSamples(_ context.Context, samples []models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.samples = append(m.samples, samples...)
	return nil
}

// samplesAt returns the samples collected at t keyed by metric and interface.
func (m *memStore) samplesAt(t time.Time) map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64)
	for _, smp := range m.samples {
		if !smp.CollectedAt.Equal(t) {
			continue
		}
		key := string(smp.MetricType)
		if smp.InterfaceID != 0 {
			key = fmt.Sprintf("%s/%d", key, smp.InterfaceID)
		}
		out[key] = smp.Value
	}
	return out
}

// sealer "decrypts" by stripping a prefix.
type sealer struct{}

func (sealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
