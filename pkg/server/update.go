package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/luminus"
	"github.com/raterudder/luminus/pkg/metrics"
	"github.com/raterudder/luminus/pkg/types"
)

// updateResult summarizes a snapshot run.
type updateResult struct {
	Meters   int      `json:"meters"`
	Stored   int      `json:"stored"`
	Failures []string `json:"failures,omitempty"`
}

// runUpdate stores a price snapshot for every meter on the account. A
// rejected login stops the run since every following call would fail the
// same way.
func (s *Server) runUpdate(ctx context.Context) (updateResult, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var res updateResult
	meters, err := s.client.ListMeters(ctx)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues(metrics.ResultError).Inc()
		return res, err
	}
	res.Meters = len(meters)

	now := s.now().UTC()
	for _, m := range meters {
		mctx := log.With(ctx, log.Ctx(ctx).With(slog.String("ean", m.EAN)))
		if err := s.storage.UpsertMeter(mctx, m); err != nil {
			return res, fmt.Errorf("failed to store meter %s: %w", m.EAN, err)
		}

		doc, err := s.client.GetMeterPricing(mctx, m.EAN)
		if err != nil {
			metrics.SnapshotsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			if luminus.IsAuthError(err) {
				return res, err
			}
			log.Ctx(mctx).WarnContext(mctx, "failed to get meter pricing", slog.Any("error", err))
			res.Failures = append(res.Failures, m.EAN)
			continue
		}

		if err := s.storage.UpsertPriceSnapshot(mctx, types.NewPriceSnapshot(m, doc, now)); err != nil {
			metrics.SnapshotsTotal.WithLabelValues(metrics.ResultError).Inc()
			return res, fmt.Errorf("failed to store price snapshot for %s: %w", m.EAN, err)
		}
		metrics.SnapshotsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		res.Stored++
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"price snapshots stored",
		slog.Int("meters", res.Meters),
		slog.Int("stored", res.Stored),
		slog.Int("failures", len(res.Failures)),
	)
	return res, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.runUpdate(ctx)
	if err != nil {
		var connErr *luminus.ConnectionError
		if luminus.IsAuthError(err) || errors.As(err, &connErr) {
			writeClientError(ctx, w, err)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "update failed", slog.Any("error", err))
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}
