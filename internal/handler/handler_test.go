package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/cache"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/query"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
	"github.com/web3-frozen/yield-tracker/internal/store"
)

func day(n int) time.Time {
	return time.Date(2026, 5, n, 12, 0, 0, 0, time.UTC)
}

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	for d := 1; d <= 5; d++ {
		s := snapshot.Snapshot{
			Source: "defillama", Network: "ethereum", Category: "lending", AssetSymbol: "USDC",
			TotalRate: snapshot.Float(float64(d)), ObservedAt: day(d), DayBucket: snapshot.DayBucket(day(d)),
		}
		if err := m.UpsertSnapshot(context.Background(), &s); err != nil {
			t.Fatal(err)
		}
	}
	s := snapshot.Snapshot{
		Source: "merkl", Network: "base", Category: "dex", AssetSymbol: "WETH-USDC",
		TotalRate: snapshot.Float(12), ObservedAt: day(5), DayBucket: snapshot.DayBucket(day(5)),
	}
	if err := m.UpsertSnapshot(context.Background(), &s); err != nil {
		t.Fatal(err)
	}
	return m
}

func service(r query.Reader) *query.Service {
	return query.NewService(r, cache.NewMemory(time.Minute), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestLatestSnapshots(t *testing.T) {
	h := LatestSnapshots(service(seeded(t)))

	rec := get(t, h, "/api/snapshots/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body)
	}
	var rows []snapshot.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].AssetSymbol != "WETH-USDC" || *rows[1].TotalRate != 5 {
		t.Errorf("rows = %+v", rows)
	}

	rec = get(t, h, "/api/snapshots/latest?minRate=6&network=BASE")
	rows = nil
	_ = json.NewDecoder(rec.Body).Decode(&rows)
	if len(rows) != 1 || rows[0].Source != "merkl" {
		t.Errorf("filtered rows = %+v", rows)
	}
}

func TestLatestSnapshotsValidation(t *testing.T) {
	h := LatestSnapshots(service(store.NewMemory()))
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad minRate", "/api/snapshots/latest?minRate=high", http.StatusBadRequest},
		{"bad limit", "/api/snapshots/latest?limit=ten", http.StatusBadRequest},
		{"bad sort", "/api/snapshots/latest?sort=apy", http.StatusBadRequest},
		{"empty store", "/api/snapshots/latest?sort=tvlUsd&limit=500", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.want, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}

	rec := get(t, h, "/api/snapshots/latest")
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("empty body = %q, want []", body)
	}
}

type brokenStore struct{ *store.Memory }

func (brokenStore) LatestSnapshots(context.Context, store.LatestFilter) ([]snapshot.Snapshot, error) {
	return nil, errors.New("db down")
}

func (brokenStore) NetworkGroups(context.Context) ([]store.NetworkGroup, error) {
	return nil, errors.New("db down")
}

func (brokenStore) RecentActivity(context.Context, int) ([]snapshot.ActivityRecord, error) {
	return nil, errors.New("db down")
}

func (brokenStore) Ping(context.Context) error { return errors.New("db down") }

func TestStoreFailuresAreServerErrors(t *testing.T) {
	bs := brokenStore{store.NewMemory()}
	svc := service(bs)
	for name, h := range map[string]http.HandlerFunc{
		"latest":   LatestSnapshots(svc),
		"networks": Networks(svc),
		"activity": Activity(bs),
	} {
		rec := get(t, h, "/")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: status = %d, want 500", name, rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] == "" {
			t.Errorf("%s: body not a JSON error: %v", name, err)
		}
	}
}

func TestUnencodableRowIsServerError(t *testing.T) {
	m := store.NewMemory()
	s := snapshot.Snapshot{
		Source: "board", Network: "ethereum", Category: "defi", AssetSymbol: "USDC",
		TotalRate: snapshot.Float(math.NaN()), ObservedAt: day(1), DayBucket: snapshot.DayBucket(day(1)),
	}
	if err := m.UpsertSnapshot(context.Background(), &s); err != nil {
		t.Fatal(err)
	}
	svc := service(m)

	for name, h := range map[string]http.HandlerFunc{
		"latest":  LatestSnapshots(svc),
		"history": SnapshotHistory(svc),
	} {
		rec := get(t, h, "/")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: status = %d, want 500", name, rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] == "" {
			t.Errorf("%s: body not a JSON error: %v", name, err)
		}
	}
}

func TestSnapshotHistory(t *testing.T) {
	h := SnapshotHistory(service(seeded(t)))

	rec := get(t, h, "/api/snapshots/history?asset=USDC&from=2026-05-02&to=2026-05-04")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body)
	}
	var rows []snapshot.Snapshot
	_ = json.NewDecoder(rec.Body).Decode(&rows)
	if len(rows) != 3 || !rows[0].ObservedAt.Equal(day(2)) || !rows[2].ObservedAt.Equal(day(4)) {
		t.Errorf("rows = %+v", rows)
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"rfc3339", "/api/snapshots/history?from=2026-05-01T00:00:00Z", http.StatusOK},
		{"bad from", "/api/snapshots/history?from=yesterday", http.StatusBadRequest},
		{"bad to", "/api/snapshots/history?to=05/01/2026", http.StatusBadRequest},
		{"inverted", "/api/snapshots/history?from=2026-05-04&to=2026-05-02", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, h, tt.target); rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestMeta(t *testing.T) {
	svc := service(seeded(t))

	var networks []query.Network
	_ = json.NewDecoder(get(t, Networks(svc), "/").Body).Decode(&networks)
	if len(networks) != 2 || networks[0].ID != "base" || networks[1].Label != "Ethereum" {
		t.Errorf("networks = %+v", networks)
	}

	var categories []query.Category
	_ = json.NewDecoder(get(t, Categories(svc), "/").Body).Decode(&categories)
	if len(categories) != 2 || categories[0].Kind != "defi" || categories[1].Kind != "lending" {
		t.Errorf("categories = %+v", categories)
	}

	var assets []query.Asset
	_ = json.NewDecoder(get(t, Assets(svc), "/").Body).Decode(&assets)
	if len(assets) != 2 || assets[0].Symbol != "USDC" {
		t.Errorf("assets = %+v", assets)
	}
}

func TestActivity(t *testing.T) {
	m := store.NewMemory()
	for _, src := range []string{"defillama", "merkl", "turtle"} {
		_ = m.Record(context.Background(), snapshot.ActivityRecord{Source: src, Success: true})
	}
	h := Activity(m)

	var recs []snapshot.ActivityRecord
	_ = json.NewDecoder(get(t, h, "/api/activity?limit=2").Body).Decode(&recs)
	if len(recs) != 2 || recs[0].Source != "turtle" {
		t.Errorf("records = %+v", recs)
	}
	for _, bad := range []string{"0", "-1", "5000", "x"} {
		if rec := get(t, h, "/api/activity?limit="+bad); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d", bad, rec.Code)
		}
	}
}

func TestSources(t *testing.T) {
	e, err := monitor.NewEngine("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	rec := get(t, Sources(e), "/api/sources")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestHealthAndReady(t *testing.T) {
	if rec := get(t, Health(), "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := get(t, Ready(store.NewMemory()), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
	if rec := get(t, Ready(brokenStore{store.NewMemory()}), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with db down = %d", rec.Code)
	}
}
