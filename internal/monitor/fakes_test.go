package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/web3-frozen/yield-tracker/internal/browser"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rawRate struct {
	Asset string
	Rate  float64
}

// fakeAdapter is a direct-fetch adapter over a fixed item list.
type fakeAdapter struct {
	info     SourceInfo
	items    []rawRate
	fetchErr error
	badAsset string
	fetch    func(ctx context.Context) ([]rawRate, error)
}

func (a *fakeAdapter) Info() SourceInfo { return a.info }

func (a *fakeAdapter) FetchRaw(ctx context.Context) ([]rawRate, error) {
	if a.fetch != nil {
		return a.fetch(ctx)
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.items, nil
}

func (a *fakeAdapter) Normalize(raw rawRate) (snapshot.Snapshot, error) {
	if raw.Asset == a.badAsset && a.badAsset != "" {
		return snapshot.Snapshot{}, errors.New("unexpected shape")
	}
	return snapshot.Snapshot{
		AssetSymbol: raw.Asset,
		TotalRate:   snapshot.Float(raw.Rate),
	}, nil
}

// fakePageAdapter reads rawRate rows from a rendered page.
type fakePageAdapter struct {
	info SourceInfo
	spec PageSpec
}

func (a *fakePageAdapter) Info() SourceInfo { return a.info }
func (a *fakePageAdapter) Page() PageSpec   { return a.spec }
func (a *fakePageAdapter) Normalize(raw rawRate) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{AssetSymbol: raw.Asset, SupplyRate: snapshot.Float(raw.Rate)}, nil
}

// fakeBrowser serves pages of rows; failures lists, per attempt, whether
// navigation should fail.
type fakeBrowser struct {
	mu       sync.Mutex
	pages    [][]rawRate
	failures []bool
	opened   int
	closed   int
	clicks   int
}

func (b *fakeBrowser) NewSession(context.Context) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fail := b.opened < len(b.failures) && b.failures[b.opened]
	b.opened++
	return &fakeSession{b: b, fail: fail}, nil
}

type fakeSession struct {
	b    *fakeBrowser
	fail bool
	page int
}

func (s *fakeSession) Navigate(ctx context.Context, url, ready string) error {
	if s.fail {
		return errors.New("ready selector never appeared")
	}
	return ctx.Err()
}

func (s *fakeSession) Evaluate(_ context.Context, _ string, dst any) error {
	rows := []rawRate{}
	if s.page < len(s.b.pages) {
		rows = s.b.pages[s.page]
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *fakeSession) ClickNext(context.Context, string) (bool, error) {
	s.b.mu.Lock()
	s.b.clicks++
	s.b.mu.Unlock()
	if s.page+1 >= len(s.b.pages) {
		return false, nil
	}
	s.page++
	return true, nil
}

func (s *fakeSession) Close() {
	s.b.mu.Lock()
	s.b.closed++
	s.b.mu.Unlock()
}

// failingWriter rejects upserts for one asset.
type failingWriter struct {
	snapshot.Writer
	reject string
}

func (w *failingWriter) UpsertSnapshot(ctx context.Context, s *snapshot.Snapshot) error {
	if s.AssetSymbol == w.reject {
		return errors.New("connection reset")
	}
	return w.Writer.UpsertSnapshot(ctx, s)
}

type failingSink struct{}

func (failingSink) Record(context.Context, snapshot.ActivityRecord) error {
	return errors.New("sink down")
}

type panicCrawler struct{}

func (panicCrawler) Info() SourceInfo { return SourceInfo{Name: "boom"} }
func (panicCrawler) Crawl(context.Context) (*CrawlResult, error) {
	panic("nil market")
}
