package server

import (
	"net/http"

	"github.com/raterudder/luminus/pkg/types"
)

func (s *Server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meters, err := s.client.ListMeters(ctx)
	if err != nil {
		writeClientError(ctx, w, err)
		return
	}
	if meters == nil {
		meters = []types.Meter{}
	}
	writeJSON(w, meters)
}

func (s *Server) handleMeterPricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.client.GetMeterPricing(ctx, r.PathValue("ean"))
	if err != nil {
		writeClientError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, doc)
}
