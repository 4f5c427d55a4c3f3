package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
)

const (
	defaultHistoryRange = 7 * 24 * time.Hour
	maxHistoryRange     = 366 * 24 * time.Hour
)

func (s *Server) handleHistoryPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ean := r.URL.Query().Get("ean")
	if ean == "" {
		writeJSONError(w, "missing ean", http.StatusBadRequest)
		return
	}
	start, end, err := parseTimeRange(r, s.now())
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	snapshots, err := s.storage.GetPriceHistory(ctx, ean, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get price history", slog.String("ean", ean), slog.Any("error", err))
		writeJSONError(w, "failed to get price history", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []types.PriceSnapshot{}
	}

	// Set Cache-Control headers
	// If the range ends before today (midnight today), cache for 24 hours.
	// Otherwise, cache for 1 minute.
	today := s.now().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}

	writeJSON(w, snapshots)
}

func (s *Server) handleLatestPricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ean := r.PathValue("ean")

	snapshot, err := s.storage.GetLatestPriceSnapshot(ctx, ean)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		writeJSONError(w, "no price snapshot", http.StatusNotFound)
		return
	} else if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest snapshot", slog.String("ean", ean), slog.Any("error", err))
		writeJSONError(w, "failed to get latest snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, snapshot)
}

func parseTimeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" && endStr == "" {
		// Default to the last week if not specified
		return now.Add(-defaultHistoryRange), now, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end must be given together")
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed %d days", int(maxHistoryRange.Hours()/24))
	}

	return start, end, nil
}
