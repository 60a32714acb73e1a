package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const snapshotsCollection = "snapshots"

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Snapshots live under inverters/{inverterID}/snapshots/{timestamp}.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) snapshots(inverterID string) (*firestore.CollectionRef, error) {
	if inverterID == "" {
		return nil, fmt.Errorf("inverterID cannot be empty")
	}
	return f.client.Collection("inverters").Doc(inverterID).Collection(snapshotsCollection), nil
}

// snapshotIDLayout keeps every fractional digit so IDs stay unique below a
// second and still sort in time order.
const snapshotIDLayout = "2006-01-02T15:04:05.000000000Z07:00"

func snapshotDocID(ts time.Time) string {
	return ts.UTC().Format(snapshotIDLayout)
}

func decodeSnapshot(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Snapshot, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc missing json", slog.String("docID", doc.Ref.ID))
		return types.Snapshot{}, fmt.Errorf("snapshot document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc json not string", slog.String("docID", doc.Ref.ID))
		return types.Snapshot{}, fmt.Errorf("snapshot document %s 'json' field is not string", doc.Ref.ID)
	}
	var snap types.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal snapshot", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return types.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot %s: %w", doc.Ref.ID, err)
	}
	return snap, nil
}

// SaveSnapshot stores the snapshot as a JSON blob. The document ID is the
// UTC timestamp with nanoseconds for efficient range queries.
func (f *FirestoreProvider) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	coll, err := f.snapshots(snap.InverterID)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = coll.Doc(snapshotDocID(snap.Timestamp)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": snap.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot taken at ts.
func (f *FirestoreProvider) GetSnapshot(ctx context.Context, inverterID string, ts time.Time) (types.Snapshot, error) {
	coll, err := f.snapshots(inverterID)
	if err != nil {
		return types.Snapshot{}, err
	}
	doc, err := coll.Doc(snapshotDocID(ts)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Snapshot{}, ErrSnapshotNotFound
		}
		return types.Snapshot{}, fmt.Errorf("failed to fetch snapshot doc: %w", err)
	}
	return decodeSnapshot(ctx, doc)
}

// LatestSnapshot retrieves the most recently stored snapshot.
func (f *FirestoreProvider) LatestSnapshot(ctx context.Context, inverterID string) (types.Snapshot, error) {
	coll, err := f.snapshots(inverterID)
	if err != nil {
		return types.Snapshot{}, err
	}
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to get latest snapshot doc: %w", err)
	}
	return decodeSnapshot(ctx, doc)
}

// ListSnapshots retrieves the snapshots within the specified time range.
// Uses document ID range queries for efficient filtering.
func (f *FirestoreProvider) ListSnapshots(ctx context.Context, inverterID string, start, end time.Time) ([]types.Snapshot, error) {
	coll, err := f.snapshots(inverterID)
	if err != nil {
		return nil, err
	}

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(snapshotDocID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(snapshotDocID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var snaps []types.Snapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating snapshots: %w", err)
		}
		snap, err := decodeSnapshot(ctx, doc)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
