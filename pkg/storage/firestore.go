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
	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Each meter is a document in "meters" with its snapshots in the
// "price_history" subcollection.
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
	// the project ID can be detected from the environment
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

func (f *FirestoreProvider) meterDoc(ean string) (*firestore.DocumentRef, error) {
	if err := validateEAN(ean); err != nil {
		return nil, err
	}
	return f.client.Collection("meters").Doc(ean), nil
}

func (f *FirestoreProvider) historyCollection(ean string) (*firestore.CollectionRef, error) {
	doc, err := f.meterDoc(ean)
	if err != nil {
		return nil, err
	}
	return doc.Collection("price_history"), nil
}

// decodeJSON reads the "json" field every document carries.
func decodeJSON(ctx context.Context, doc *firestore.DocumentSnapshot, dest any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("path", doc.Ref.Path))
		return fmt.Errorf("document %s 'json' field is not string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal document (id=%s): %w", doc.Ref.ID, err)
	}
	return nil
}

// UpsertMeter stores the meter document keyed by its EAN.
func (f *FirestoreProvider) UpsertMeter(ctx context.Context, meter types.Meter) error {
	jsonBytes, err := json.Marshal(meter)
	if err != nil {
		return fmt.Errorf("failed to marshal meter: %w", err)
	}
	ref, err := f.meterDoc(meter.EAN)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":       string(jsonBytes),
		"energyType": string(meter.EnergyType),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert meter: %w", err)
	}
	return nil
}

// GetMeter returns the stored meter or ErrMeterNotFound.
func (f *FirestoreProvider) GetMeter(ctx context.Context, ean string) (types.Meter, error) {
	ref, err := f.meterDoc(ean)
	if err != nil {
		return types.Meter{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Meter{}, ErrMeterNotFound
		}
		return types.Meter{}, fmt.Errorf("failed to get meter %s: %w", ean, err)
	}
	var m types.Meter
	if err := decodeJSON(ctx, doc, &m); err != nil {
		return types.Meter{}, err
	}
	return m, nil
}

// UpsertPriceSnapshot adds or updates a snapshot in the meter's
// "price_history" collection. The document ID is the RFC3339 fetch time.
func (f *FirestoreProvider) UpsertPriceSnapshot(ctx context.Context, snapshot types.PriceSnapshot) error {
	jsonBytes, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal price snapshot: %w", err)
	}

	coll, err := f.historyCollection(snapshot.EAN)
	if err != nil {
		return err
	}

	_, err = coll.Doc(snapshotID(snapshot.TSFetched)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": snapshot.TSFetched,
		"version":   snapshot.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert price snapshot: %w", err)
	}
	return nil
}

// GetPriceHistory retrieves snapshots within the specified time range for a
// meter. Uses document ID range queries for efficient filtering.
func (f *FirestoreProvider) GetPriceHistory(ctx context.Context, ean string, start, end time.Time) ([]types.PriceSnapshot, error) {
	coll, err := f.historyCollection(ean)
	if err != nil {
		return nil, err
	}

	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(snapshotID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(snapshotID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var snapshots []types.PriceSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating price snapshots: %w", err)
		}

		var s types.PriceSnapshot
		if err := decodeJSON(ctx, doc, &s); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// GetLatestPriceSnapshot returns the most recent snapshot of a meter or
// ErrSnapshotNotFound.
func (f *FirestoreProvider) GetLatestPriceSnapshot(ctx context.Context, ean string) (types.PriceSnapshot, error) {
	coll, err := f.historyCollection(ean)
	if err != nil {
		return types.PriceSnapshot{}, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.PriceSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return types.PriceSnapshot{}, fmt.Errorf("failed to get latest price snapshot: %w", err)
	}

	var s types.PriceSnapshot
	if err := decodeJSON(ctx, doc, &s); err != nil {
		return types.PriceSnapshot{}, err
	}
	return s, nil
}
