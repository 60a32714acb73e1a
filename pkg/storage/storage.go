package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/proteus/pkg/types"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Database defines the interface for persisting dashboard snapshots.
type Database interface {
	// SaveSnapshot stores a snapshot under its inverter and timestamp.
	SaveSnapshot(ctx context.Context, snap types.Snapshot) error
	// GetSnapshot returns the snapshot taken at ts.
	GetSnapshot(ctx context.Context, inverterID string, ts time.Time) (types.Snapshot, error)
	// LatestSnapshot returns the most recent snapshot for an inverter.
	LatestSnapshot(ctx context.Context, inverterID string) (types.Snapshot, error)
	// ListSnapshots returns the snapshots taken in [start, end), oldest first.
	ListSnapshots(ctx context.Context, inverterID string, start, end time.Time) ([]types.Snapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags. It returns nil if
// no provider was picked.
func Configured() *Configuration {
	provider := lflag.String("storage-provider", "", "Storage provider for snapshots (available: firestore). Empty disables storage.")

	c := &Configuration{}
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "":
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			c.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return c
}

// Configuration holds the configured Database, which is nil when storage is
// disabled.
type Configuration struct {
	Database Database
}

// Enabled returns true if a storage provider was configured.
func (c *Configuration) Enabled() bool {
	return c.Database != nil
}

// Close closes the configured Database, if any.
func (c *Configuration) Close() error {
	if c.Database == nil {
		return nil
	}
	return c.Database.Close()
}
