package storagemock

import (
	"context"
	"time"

	"github.com/raterudder/proteus/pkg/storage"
	"github.com/raterudder/proteus/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockDatabase) GetSnapshot(ctx context.Context, inverterID string, ts time.Time) (types.Snapshot, error) {
	args := m.Called(ctx, inverterID, ts)
	return args.Get(0).(types.Snapshot), args.Error(1)
}

func (m *MockDatabase) LatestSnapshot(ctx context.Context, inverterID string) (types.Snapshot, error) {
	args := m.Called(ctx, inverterID)
	return args.Get(0).(types.Snapshot), args.Error(1)
}

func (m *MockDatabase) ListSnapshots(ctx context.Context, inverterID string, start, end time.Time) ([]types.Snapshot, error) {
	args := m.Called(ctx, inverterID, start, end)
	if v := args.Get(0); v != nil {
		return v.([]types.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
