package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/query"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// LatestSnapshots serves GET /api/snapshots/latest.
// Query: asset, category, network, minRate, sort, limit.
func LatestSnapshots(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := query.LatestFilter{
			Asset:     q.Get("asset"),
			Category:  q.Get("category"),
			Network:   q.Get("network"),
			SortField: q.Get("sort"),
		}
		if v := q.Get("minRate"); v != "" {
			rate, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid minRate")
				return
			}
			f.MinRate = &rate
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			f.Limit = n
		}

		rows, err := svc.Latest(r.Context(), f)
		if errors.Is(err, query.ErrInvalidSortField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load latest snapshots")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// SnapshotHistory serves GET /api/snapshots/history.
// Query: asset, category, network, source, from, to.
func SnapshotHistory(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := parseTime(q, "from", false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to, err := parseTime(q, "to", true)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows, err := svc.History(r.Context(), query.HistoryFilter{
			Asset:    q.Get("asset"),
			Category: q.Get("category"),
			Network:  q.Get("network"),
			Source:   q.Get("source"),
			From:     from,
			To:       to,
		})
		if errors.Is(err, query.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load snapshot history")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// parseTime accepts RFC 3339 or a bare day. A bare day used as an upper
// bound covers the whole day.
func parseTime(q url.Values, key string, endOfDay bool) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(snapshot.DayLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want RFC 3339 or %s", key, snapshot.DayLayout)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
