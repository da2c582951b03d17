package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/browser"
	"github.com/web3-frozen/yield-tracker/internal/metrics"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const defaultMaxPages = 20

// crawl runs fetch then normalize over every item, preserving upstream order.
func crawl[T any](ctx context.Context, info SourceInfo, now func() time.Time,
	fetch func(context.Context) ([]T, error), normalize func(T) (snapshot.Snapshot, error)) (*CrawlResult, error) {

	start := time.Now()
	capturedAt := now().UTC()

	raws, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", info.Name, err)
	}

	data := make([]snapshot.Snapshot, 0, len(raws))
	for i, raw := range raws {
		s, err := normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize %s item %d: %w", info.Name, i, err)
		}
		if s.Source == "" {
			s.Source = info.Name
		}
		if s.Network == "" {
			s.Network = info.Network
		}
		if s.Category == "" {
			s.Category = info.Category
		}
		s.CapturedAt = capturedAt
		if s.ObservedAt.IsZero() {
			s.ObservedAt = capturedAt
		}
		data = append(data, s)
	}

	return &CrawlResult{
		Source:     info.Name,
		Network:    info.Network,
		Category:   info.Category,
		CapturedAt: capturedAt,
		DurationMs: time.Since(start).Milliseconds(),
		ItemsFound: len(data),
		Data:       data,
	}, nil
}

type directCrawler[T any] struct {
	adapter Adapter[T]
	now     func() time.Time
}

// Direct wraps an API adapter. It never retries; a failed crawl waits for the next tick.
func Direct[T any](a Adapter[T]) Crawler {
	return &directCrawler[T]{adapter: a, now: time.Now}
}

func (c *directCrawler[T]) Info() SourceInfo {
	info := c.adapter.Info()
	info.Variant = VariantDirect
	return info
}

func (c *directCrawler[T]) Crawl(ctx context.Context) (*CrawlResult, error) {
	return crawl(ctx, c.Info(), c.now, c.adapter.FetchRaw, c.adapter.Normalize)
}

type renderedCrawler[T any] struct {
	adapter PageAdapter[T]
	browser browser.Browser
	policy  RetryPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// Rendered wraps a page adapter. Each attempt opens a fresh browser session;
// the whole navigate/extract/paginate sequence is retried per policy.
func Rendered[T any](a PageAdapter[T], b browser.Browser, p RetryPolicy, logger *slog.Logger) Crawler {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return &renderedCrawler[T]{adapter: a, browser: b, policy: p, logger: logger, now: time.Now}
}

func (c *renderedCrawler[T]) Info() SourceInfo {
	info := c.adapter.Info()
	info.Variant = VariantRendered
	return info
}

func (c *renderedCrawler[T]) Crawl(ctx context.Context) (*CrawlResult, error) {
	return crawl(ctx, c.Info(), c.now, c.fetchWithRetry, c.adapter.Normalize)
}

func (c *renderedCrawler[T]) fetchWithRetry(ctx context.Context) ([]T, error) {
	name := c.adapter.Info().Name
	var (
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= c.policy.Attempts; attempt++ {
		rows, err := c.render(ctx)
		if err == nil {
			metrics.RenderAttemptsTotal.WithLabelValues(name, "success").Inc()
			return rows, nil
		}
		metrics.RenderAttemptsTotal.WithLabelValues(name, "error").Inc()
		lastErr = err
		if ctx.Err() != nil || attempt == c.policy.Attempts {
			break
		}

		delay := c.policy.Backoff * time.Duration(attempt)
		c.logger.Warn("render attempt failed, retrying",
			"source", name, "attempt", attempt, "of", c.policy.Attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("render cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), lastErr))
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("render failed after %d attempts: %w", min(attempt, c.policy.Attempts), lastErr)
}

// render performs one attempt in its own session.
func (c *renderedCrawler[T]) render(ctx context.Context) ([]T, error) {
	spec := c.adapter.Page()
	maxPages := spec.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	sess, err := c.browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	step := func(fn func(context.Context) error) error {
		if spec.NavTimeout <= 0 {
			return fn(ctx)
		}
		stepCtx, cancel := context.WithTimeout(ctx, spec.NavTimeout)
		defer cancel()
		return fn(stepCtx)
	}

	if err := step(func(ctx context.Context) error {
		return sess.Navigate(ctx, spec.URL, spec.ReadySelector)
	}); err != nil {
		return nil, err
	}

	var rows []T
	for page := 1; ; page++ {
		var pageRows []T
		if err := step(func(ctx context.Context) error {
			return sess.Evaluate(ctx, spec.RowsScript, &pageRows)
		}); err != nil {
			return nil, fmt.Errorf("extract page %d: %w", page, err)
		}
		rows = append(rows, pageRows...)

		if spec.NextSelector == "" || page >= maxPages {
			break
		}
		var advanced bool
		if err := step(func(ctx context.Context) error {
			var err error
			advanced, err = sess.ClickNext(ctx, spec.NextSelector)
			return err
		}); err != nil {
			return nil, fmt.Errorf("advance past page %d: %w", page, err)
		}
		if !advanced {
			break
		}
	}
	return rows, nil
}
