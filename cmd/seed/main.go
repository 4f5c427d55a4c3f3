package main

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/luminus"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	seedRange := lflag.Duration("seed-range", 90*24*time.Hour, "How far back to seed daily price snapshots")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	c, err := luminus.New(luminus.Config{Mock: true})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create mock client", slog.Any("error", err))
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	meters, err := c.ListMeters(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list meters", slog.Any("error", err))
		os.Exit(1)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-*seedRange)
	var stored int
	for _, m := range meters {
		if err := s.UpsertMeter(ctx, m); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store meter", slog.String("ean", m.EAN), slog.Any("error", err))
			os.Exit(1)
		}
		doc, err := c.GetMeterPricing(ctx, m.EAN)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get pricing", slog.String("ean", m.EAN), slog.Any("error", err))
			os.Exit(1)
		}

		// One snapshot per day, monthly indexed rates drift around today's
		for t := start; !t.After(end); t = t.Add(24 * time.Hour) {
			snapshot := types.NewPriceSnapshot(m, doc, t)
			drift := 1 + 0.15*math.Sin(float64(t.YearDay())/58)
			for _, components := range snapshot.Prices {
				for name, comp := range components {
					if name == types.ComponentFixed {
						continue
					}
					// Jitter
					comp.Rate = math.Round(comp.Rate*drift*(0.98+rng.Float64()*0.04)*100) / 100
					components[name] = comp
				}
			}
			if err := s.UpsertPriceSnapshot(ctx, snapshot); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to store snapshot", slog.String("ean", m.EAN), slog.Any("error", err))
				os.Exit(1)
			}
			stored++
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete", slog.Int("meters", len(meters)), slog.Int("snapshots", stored))
}
