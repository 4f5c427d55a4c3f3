package storagemock

import (
	"context"
	"time"

	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertMeter(ctx context.Context, meter types.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

func (m *MockDatabase) GetMeter(ctx context.Context, ean string) (types.Meter, error) {
	args := m.Called(ctx, ean)
	return args.Get(0).(types.Meter), args.Error(1)
}

func (m *MockDatabase) UpsertPriceSnapshot(ctx context.Context, snapshot types.PriceSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDatabase) GetPriceHistory(ctx context.Context, ean string, start, end time.Time) ([]types.PriceSnapshot, error) {
	args := m.Called(ctx, ean, start, end)
	// return empty if not specified
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PriceSnapshot), args.Error(1)
}

func (m *MockDatabase) GetLatestPriceSnapshot(ctx context.Context, ean string) (types.PriceSnapshot, error) {
	args := m.Called(ctx, ean)
	return args.Get(0).(types.PriceSnapshot), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
