package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/luminus/pkg/types"
)

var (
	ErrMeterNotFound    = errors.New("meter not found")
	ErrSnapshotNotFound = errors.New("price snapshot not found")
)

// Database defines the interface for persisting meters and their price
// history.
type Database interface {
	// Meters
	UpsertMeter(ctx context.Context, meter types.Meter) error
	GetMeter(ctx context.Context, ean string) (types.Meter, error)

	// Price history
	// UpsertPriceSnapshot adds or replaces the snapshot taken at the same
	// second for the same meter.
	UpsertPriceSnapshot(ctx context.Context, snapshot types.PriceSnapshot) error
	// GetPriceHistory returns snapshots with start <= TSFetched < end, oldest
	// first.
	GetPriceHistory(ctx context.Context, ean string, start, end time.Time) ([]types.PriceSnapshot, error)
	GetLatestPriceSnapshot(ctx context.Context, ean string) (types.PriceSnapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: firestore, memory)")

	p := &configuredDatabase{}

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return p
}

// configuredDatabase lets Configured hand out a Database before flags are
// parsed.
type configuredDatabase struct {
	Database
}

// Ephemeral reports whether db only keeps its data in process memory, in
// which case nothing written by an earlier process can be read back.
func Ephemeral(db Database) bool {
	if c, ok := db.(*configuredDatabase); ok {
		db = c.Database
	}
	_, ok := db.(*Memory)
	return ok
}

// snapshotID is the document ID of a snapshot. RFC3339 in UTC sorts
// lexicographically in time order.
func snapshotID(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

func validateEAN(ean string) error {
	if ean == "" {
		return errors.New("ean cannot be empty")
	}
	return nil
}
