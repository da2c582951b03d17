package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const defaultActivityLimit = 100

type ActivityReader interface {
	RecentActivity(ctx context.Context, limit int) ([]snapshot.ActivityRecord, error)
}

// Activity serves GET /api/activity?limit=N, newest first.
func Activity(s ActivityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultActivityLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1000 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
				return
			}
			limit = n
		}
		records, err := s.RecentActivity(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list activity")
			return
		}
		if records == nil {
			records = []snapshot.ActivityRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

type SourceLister interface {
	Sources() []monitor.SourceInfo
}

// Sources serves GET /api/sources.
func Sources(l SourceLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, l.Sources())
	}
}
