package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/yield-tracker/internal/metrics"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Outcome summarises one ingestion run.
type Outcome struct {
	RunID        string        `json:"runId"`
	Source       string        `json:"source"`
	ItemsFound   int           `json:"itemsFound"`
	ItemsWritten int           `json:"itemsWritten"`
	Duration     time.Duration `json:"duration"`
	Err          error         `json:"-"`
}

func (o Outcome) Success() bool { return o.Err == nil }

// Ingestor runs one source end to end: crawl, day-bucket upsert, activity record.
type Ingestor struct {
	crawler Crawler
	writer  snapshot.Writer
	sink    snapshot.ActivitySink
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngestor(c Crawler, w snapshot.Writer, sink snapshot.ActivitySink, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		crawler: c,
		writer:  w,
		sink:    sink,
		logger:  logger.With("source", c.Info().Name),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for day buckets and timestamps.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

func (i *Ingestor) Info() SourceInfo { return i.crawler.Info() }

// Run never returns an error: failures end up in the Outcome and in exactly
// one ActivityRecord.
func (i *Ingestor) Run(ctx context.Context) Outcome {
	info := i.crawler.Info()
	out := Outcome{RunID: uuid.NewString(), Source: info.Name}
	start := time.Now()

	res, err := i.safeCrawl(ctx)
	if err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		i.logger.Error("crawl failed", "run_id", out.RunID, "duration", out.Duration, "error", err)
		i.record(ctx, snapshot.ActivityRecord{
			RunID:        out.RunID,
			Source:       info.Name,
			Network:      info.Network,
			Category:     info.Category,
			DurationMs:   out.Duration.Milliseconds(),
			Success:      false,
			ErrorMessage: err.Error(),
			OccurredAt:   i.now().UTC(),
		})
		metrics.IngestRunsTotal.WithLabelValues(info.Name, "error").Inc()
		metrics.IngestDuration.WithLabelValues(info.Name).Observe(out.Duration.Seconds())
		return out
	}

	out.ItemsFound = res.ItemsFound
	for idx := range res.Data {
		s := &res.Data[idx]
		now := i.now().UTC()
		s.DayBucket = snapshot.DayBucket(now)
		s.UpdatedAt = now
		if err := i.writer.UpsertSnapshot(ctx, s); err != nil {
			metrics.UpsertFailuresTotal.WithLabelValues(info.Name).Inc()
			i.logger.Error("upsert failed", "run_id", out.RunID,
				"network", s.Network, "category", s.Category, "asset", s.AssetSymbol, "error", err)
			continue
		}
		out.ItemsWritten++
	}
	out.Duration = time.Since(start)

	i.record(ctx, snapshot.ActivityRecord{
		RunID:        out.RunID,
		Source:       info.Name,
		Network:      res.Network,
		Category:     res.Category,
		ItemsFound:   res.ItemsFound,
		ItemsWritten: out.ItemsWritten,
		DurationMs:   res.DurationMs,
		Success:      true,
		OccurredAt:   i.now().UTC(),
	})

	metrics.IngestRunsTotal.WithLabelValues(info.Name, "success").Inc()
	metrics.IngestDuration.WithLabelValues(info.Name).Observe(out.Duration.Seconds())
	metrics.IngestItemsTotal.WithLabelValues(info.Name, "found").Add(float64(out.ItemsFound))
	metrics.IngestItemsTotal.WithLabelValues(info.Name, "written").Add(float64(out.ItemsWritten))
	metrics.IngestLastSuccess.WithLabelValues(info.Name).Set(float64(i.now().Unix()))

	i.logger.Info("ingested", "run_id", out.RunID,
		"found", out.ItemsFound, "written", out.ItemsWritten, "duration", out.Duration)
	return out
}

// safeCrawl turns a panicking adapter into a failed run.
func (i *Ingestor) safeCrawl(ctx context.Context) (res *CrawlResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl panicked: %v", r)
		}
	}()
	return i.crawler.Crawl(ctx)
}

func (i *Ingestor) record(ctx context.Context, rec snapshot.ActivityRecord) {
	if i.sink == nil {
		return
	}
	// The audit entry is written even when the run was cut short by shutdown.
	if err := i.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		i.logger.Error("record activity failed", "run_id", rec.RunID, "error", err)
	}
}
