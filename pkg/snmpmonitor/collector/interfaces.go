package collector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// Counter snapshot keys stored per interface.
const (
	snapIn     = "in"
	snapOut    = "out"
	snapInErr  = "in_err"
	snapOutErr = "out_err"
	snapHC     = "hc" // 1 when in/out came from the 64-bit columns
)

// counterWidths lists the octet counter sets in order of preference.
var counterWidths = []registry.CounterOIDs{
	registry.InterfaceCounters(true),
	registry.InterfaceCounters(false),
}

// ifColumns are fetched for every monitored interface on every poll.
var ifColumns = func() []string {
	var cols []string
	for _, c := range counterWidths {
		cols = append(cols, c.InOctets, c.OutOctets)
	}
	return append(cols, registry.OIDIfInErrors, registry.OIDIfOutErrors, registry.OIDIfOperStatus)
}()

func instanceOID(column string, ifIndex int) string {
	return column + "." + strconv.Itoa(ifIndex)
}

// collectInterfaces adds traffic, utilization and error-rate samples for
// each monitored interface. degraded reports an administratively up
// interface that is operationally down.
func (e *Engine) collectInterfaces(ctx context.Context, sess poller.Session, dev *models.Device, batch *metrics.Batch) (degraded bool, err error) {
	ifaces, err := e.store.ListMonitored(ctx, dev.ID)
	if err != nil {
		e.logger.Warn("collector: list interfaces failed",
			"device_id", dev.ID,
			"error", err.Error(),
		)
		return false, nil
	}
	if len(ifaces) == 0 {
		return false, nil
	}

	oids := make([]string, 0, len(ifaces)*len(ifColumns))
	for _, iface := range ifaces {
		for _, col := range ifColumns {
			oids = append(oids, instanceOID(col, iface.IfIndex))
		}
	}
	vals, err := sess.GetMultiple(ctx, oids)
	if err != nil {
		if poller.IsTransportError(err) || ctx.Err() != nil {
			return false, err
		}
		e.logger.Debug("collector: interface counters unavailable",
			"device_id", dev.ID,
			"error", err.Error(),
		)
	}

	now := batch.CollectedAt()
	for i := range ifaces {
		iface := &ifaces[i]
		get := func(col string) decoder.Value {
			return vals[instanceOID(col, iface.IfIndex)]
		}
		e.interfaceRates(dev.ID, iface, get, batch)

		oper, ok := get(registry.OIDIfOperStatus).Integer()
		if !ok {
			continue
		}
		if oper != iface.OperStatus {
			if err := e.store.UpdateOperStatus(ctx, iface.ID, oper, now); err != nil {
				e.logger.Warn("collector: update oper status failed",
					"device_id", dev.ID,
					"if_index", iface.IfIndex,
					"error", err.Error(),
				)
			}
		}
		if iface.AdminStatus == models.IfStatusUp && oper == models.IfStatusDown {
			degraded = true
		}
	}
	return degraded, nil
}

// interfaceRates stores the interface's raw counters and, when a sane
// previous snapshot exists, emits rate samples.
func (e *Engine) interfaceRates(deviceID uint, iface *models.InterfaceInfo, get func(string) decoder.Value, batch *metrics.Batch) {
	snap := make(map[string]uint64, 5)
	var (
		in, out     uint64
		okIn, okOut bool
	)
	snap[snapHC] = 0
	for _, c := range counterWidths {
		in, okIn = get(c.InOctets).Unsigned()
		out, okOut = get(c.OutOctets).Unsigned()
		if okIn && okOut {
			if c.HighCapacity {
				snap[snapHC] = 1
			}
			break
		}
	}
	if okIn && okOut {
		snap[snapIn], snap[snapOut] = in, out
	}
	if v, ok := get(registry.OIDIfInErrors).Unsigned(); ok {
		snap[snapInErr] = v
	}
	if v, ok := get(registry.OIDIfOutErrors).Unsigned(); ok {
		snap[snapOutErr] = v
	}
	if len(snap) == 1 {
		// Only the width flag: the agent returned nothing for this row.
		return
	}

	now := batch.CollectedAt()
	prev, ok := e.counters.Swap(metrics.InterfaceKey(deviceID, iface.ID), snap, now)
	if !ok {
		return
	}
	elapsed := now.Sub(prev.At)

	// A counter width change (HC columns appearing or vanishing) makes the
	// octet delta meaningless for this interval.
	if prev.Values[snapHC] == snap[snapHC] {
		inBps, okIn := octetRate(prev.Values, snap, snapIn, elapsed)
		outBps, okOut := octetRate(prev.Values, snap, snapOut, elapsed)
		if okIn {
			batch.AddInterface(models.MetricInterfaceInBps, iface.ID, inBps)
		}
		if okOut {
			batch.AddInterface(models.MetricInterfaceOutBps, iface.ID, outBps)
		}
		if okIn && okOut {
			speed := metrics.EffectiveSpeed(iface.Speed, iface.HighSpeed)
			batch.AddInterface(models.MetricInterfaceUtilization, iface.ID, metrics.Utilization(inBps, outBps, speed))
		}
	}
	if r, ok := errorRate(prev.Values, snap, snapInErr, elapsed); ok {
		batch.AddInterface(models.MetricInterfaceInErrors, iface.ID, r)
	}
	if r, ok := errorRate(prev.Values, snap, snapOutErr, elapsed); ok {
		batch.AddInterface(models.MetricInterfaceOutErrors, iface.ID, r)
	}
}

func octetRate(prev, cur map[string]uint64, key string, elapsed time.Duration) (float64, bool) {
	p, okP := prev[key]
	c, okC := cur[key]
	if !okP || !okC {
		return 0, false
	}
	d, ok := metrics.CounterDelta(p, c)
	if !ok {
		return 0, false
	}
	return metrics.BitsPerSecond(d, elapsed), true
}

func errorRate(prev, cur map[string]uint64, key string, elapsed time.Duration) (float64, bool) {
	p, okP := prev[key]
	c, okC := cur[key]
	if !okP || !okC {
		return 0, false
	}
	d, ok := metrics.ErrorDelta(p, c)
	if !ok {
		return 0, false
	}
	return metrics.PerSecond(d, elapsed), true
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface discovery
// ─────────────────────────────────────────────────────────────────────────────

// DiscoveryConcurrency bounds the parallel column walks of one discovery.
const DiscoveryConcurrency = 4

// DiscoverInterfaces walks the IF-MIB identity columns of deviceID, each on
// its own session, and upserts the result. Interfaces are keyed by ifIndex;
// existing rows keep their ID and Monitored flag.
func (e *Engine) DiscoverInterfaces(ctx context.Context, deviceID uint) ([]models.InterfaceInfo, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	dev, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("collector: load device %d: %w", deviceID, err)
	}
	target, err := e.TargetFor(dev)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		columns = make(map[string][]poller.WalkEntry, len(registry.DiscoveryColumns))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DiscoveryConcurrency)
	for _, col := range registry.DiscoveryColumns {
		col := col
		g.Go(func() error {
			sess, err := e.dial(gctx, target)
			if err != nil {
				return err
			}
			defer sess.Close()
			entries, err := sess.Walk(gctx, col)
			if err != nil {
				return fmt.Errorf("walk %s: %w", col, err)
			}
			mu.Lock()
			columns[col] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collector: discover %s: %w", dev.Name, err)
	}

	ifaces := buildInterfaces(dev.ID, columns)
	if len(ifaces) == 0 {
		e.logger.Warn("collector: no interfaces discovered", "device_id", dev.ID, "device", dev.Name)
		return nil, nil
	}
	stored, err := e.store.UpsertInterfaces(ctx, dev.ID, ifaces)
	if err != nil {
		return nil, fmt.Errorf("collector: store interfaces of %s: %w", dev.Name, err)
	}
	e.logger.Info("collector: interfaces discovered",
		"device_id", dev.ID,
		"device", dev.Name,
		"count", len(stored),
	)
	return stored, nil
}

// buildInterfaces joins the walked columns on ifIndex. ifDescr defines the
// set of interfaces; the other columns are optional.
func buildInterfaces(deviceID uint, columns map[string][]poller.WalkEntry) []models.InterfaceInfo {
	byIndex := make(map[int]*models.InterfaceInfo)
	for _, e := range columns[registry.OIDIfDescr] {
		idx, ok := lastIndex(e.Suffix)
		if !ok {
			continue
		}
		byIndex[idx] = &models.InterfaceInfo{
			DeviceID:  deviceID,
			IfIndex:   idx,
			Descr:     e.Value.String(),
			Monitored: true,
		}
	}

	each := func(col string, fn func(*models.InterfaceInfo, decoder.Value)) {
		for _, e := range columns[col] {
			idx, ok := lastIndex(e.Suffix)
			if !ok {
				continue
			}
			if iface, ok := byIndex[idx]; ok {
				fn(iface, e.Value)
			}
		}
	}
	each(registry.OIDIfName, func(i *models.InterfaceInfo, v decoder.Value) { i.Name = v.String() })
	each(registry.OIDIfAlias, func(i *models.InterfaceInfo, v decoder.Value) { i.Alias = v.String() })
	each(registry.OIDIfPhysAddress, func(i *models.InterfaceInfo, v decoder.Value) { i.MAC = v.MAC() })
	each(registry.OIDIfSpeed, func(i *models.InterfaceInfo, v decoder.Value) { i.Speed, _ = v.Unsigned() })
	each(registry.OIDIfHighSpeed, func(i *models.InterfaceInfo, v decoder.Value) { i.HighSpeed, _ = v.Unsigned() })
	each(registry.OIDIfAdminStatus, func(i *models.InterfaceInfo, v decoder.Value) { i.AdminStatus, _ = v.Integer() })
	each(registry.OIDIfOperStatus, func(i *models.InterfaceInfo, v decoder.Value) { i.OperStatus, _ = v.Integer() })

	out := make([]models.InterfaceInfo, 0, len(byIndex))
	for _, iface := range byIndex {
		if iface.Name == "" {
			iface.Name = iface.Descr
		}
		out = append(out, *iface)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IfIndex < out[j].IfIndex })
	return out
}
