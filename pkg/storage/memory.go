package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raterudder/luminus/pkg/types"
)

// Memory is an in-memory Database, useful for tests and single-process
// deployments. Nothing survives a restart.
type Memory struct {
	mu        sync.RWMutex
	meters    map[string]types.Meter
	snapshots map[string]map[string]types.PriceSnapshot
}

// NewMemory returns an empty Memory database.
func NewMemory() *Memory {
	return &Memory{
		meters:    make(map[string]types.Meter),
		snapshots: make(map[string]map[string]types.PriceSnapshot),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertMeter(ctx context.Context, meter types.Meter) error {
	if err := validateEAN(meter.EAN); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meters[meter.EAN] = meter.Clone()
	return nil
}

func (m *Memory) GetMeter(ctx context.Context, ean string) (types.Meter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meter, ok := m.meters[ean]
	if !ok {
		return types.Meter{}, ErrMeterNotFound
	}
	return meter.Clone(), nil
}

func (m *Memory) UpsertPriceSnapshot(ctx context.Context, snapshot types.PriceSnapshot) error {
	if err := validateEAN(snapshot.EAN); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.snapshots[snapshot.EAN]
	if !ok {
		byID = make(map[string]types.PriceSnapshot)
		m.snapshots[snapshot.EAN] = byID
	}
	byID[snapshotID(snapshot.TSFetched)] = snapshot.Clone()
	return nil
}

// sorted returns the snapshots of a meter oldest first. The caller must hold
// m.mu.
func (m *Memory) sorted(ean string) []types.PriceSnapshot {
	byID := m.snapshots[ean]
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]types.PriceSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func (m *Memory) GetPriceHistory(ctx context.Context, ean string, start, end time.Time) ([]types.PriceSnapshot, error) {
	if err := validateEAN(ean); err != nil {
		return nil, err
	}
	startID, endID := snapshotID(start), snapshotID(end)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.PriceSnapshot
	for _, s := range m.sorted(ean) {
		id := snapshotID(s.TSFetched)
		if id >= startID && id < endID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *Memory) GetLatestPriceSnapshot(ctx context.Context, ean string) (types.PriceSnapshot, error) {
	if err := validateEAN(ean); err != nil {
		return types.PriceSnapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sorted(ean)
	if len(all) == 0 {
		return types.PriceSnapshot{}, ErrSnapshotNotFound
	}
	return all[len(all)-1].Clone(), nil
}
