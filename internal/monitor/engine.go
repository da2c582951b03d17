package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"

	"github.com/web3-frozen/yield-tracker/internal/metrics"
)

// DefaultSchedule fires at second 0 of every minute divisible by 10.
const DefaultSchedule = "0 */10 * * * *"

var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// TickSummary reports every source's outcome for one tick.
type TickSummary struct {
	Started   time.Time
	Duration  time.Duration
	Outcomes  []Outcome
	Succeeded []string
	Failed    []string
}

// Engine fans out all registered ingestors on a cron schedule.
type Engine struct {
	logger    *slog.Logger
	schedule  cron.Schedule
	spec      string
	mu        sync.RWMutex
	ingestors []*Ingestor
	hooks     []func(context.Context, TickSummary)
}

// NewEngine validates spec (six fields, seconds first) and returns an idle engine.
func NewEngine(spec string, logger *slog.Logger) (*Engine, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Engine{logger: logger, schedule: sched, spec: spec}, nil
}

// Register adds an ingestor to every subsequent tick.
func (e *Engine) Register(ing *Ingestor) {
	e.mu.Lock()
	e.ingestors = append(e.ingestors, ing)
	e.mu.Unlock()
	info := ing.Info()
	e.logger.Info("registered source", "source", info.Name, "variant", info.Variant)
}

// OnTick adds fn to the hooks called after every tick has settled.
func (e *Engine) OnTick(fn func(context.Context, TickSummary)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Sources returns the registered sources sorted by name.
func (e *Engine) Sources() []SourceInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SourceInfo, 0, len(e.ingestors))
	for _, ing := range e.ingestors {
		out = append(out, ing.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tick runs every ingestor concurrently and waits for all of them to settle.
// A failing or panicking source never affects its siblings.
func (e *Engine) Tick(ctx context.Context) TickSummary {
	e.mu.RLock()
	ingestors := append([]*Ingestor(nil), e.ingestors...)
	hooks := append([]func(context.Context, TickSummary)(nil), e.hooks...)
	e.mu.RUnlock()

	summary := TickSummary{Started: time.Now(), Outcomes: make([]Outcome, len(ingestors))}
	if len(ingestors) == 0 {
		return summary
	}

	pool := pond.NewPool(len(ingestors))
	defer pool.StopAndWait()
	group := pool.NewGroup()
	for idx, ing := range ingestors {
		group.Submit(func() {
			summary.Outcomes[idx] = e.runOne(ctx, ing)
		})
	}
	// Tasks do not return errors, so Wait only reports an unexpected pool failure.
	if err := group.Wait(); err != nil {
		e.logger.Error("tick group failed", "error", err)
	}

	summary.Duration = time.Since(summary.Started)
	for _, o := range summary.Outcomes {
		if o.Success() {
			summary.Succeeded = append(summary.Succeeded, o.Source)
		} else {
			summary.Failed = append(summary.Failed, o.Source)
		}
	}

	metrics.TickDuration.Observe(summary.Duration.Seconds())
	metrics.TickSourcesFailed.Set(float64(len(summary.Failed)))
	e.logger.Info("tick complete",
		"duration", summary.Duration, "succeeded", summary.Succeeded, "failed", summary.Failed)
	for _, fn := range hooks {
		fn(ctx, summary)
	}
	return summary
}

func (e *Engine) runOne(ctx context.Context, ing *Ingestor) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Source: ing.Info().Name, Err: fmt.Errorf("ingestor panicked: %v", r)}
			e.logger.Error("ingestor panicked", "source", out.Source, "panic", r)
		}
	}()
	return ing.Run(ctx)
}

// Run ticks once immediately, then on schedule until ctx is cancelled.
// It returns after the running tick, if any, has finished.
func (e *Engine) Run(ctx context.Context) {
	e.Tick(ctx)

	logger := cronLogger{e.logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(e.schedule, cron.FuncJob(func() { e.Tick(ctx) }))
	c.Start()
	e.logger.Info("scheduler started", "schedule", e.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	e.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
