package monitor

import (
	"context"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// SourceInfo describes where a source's snapshots come from. Network and
// Category are the defaults for sources that cover a single venue; adapters
// spanning several set them per snapshot.
type SourceInfo struct {
	Name     string `json:"name"`
	Network  string `json:"network,omitempty"`
	Category string `json:"category,omitempty"`
	Variant  string `json:"variant"`
}

const (
	VariantDirect   = "direct"
	VariantRendered = "rendered"
)

// Adapter fetches raw items from an API and maps each one onto a Snapshot.
// To add a new source, implement Adapter (or PageAdapter) and register
// Direct(adapter) (or Rendered) with the Engine through an Ingestor.
type Adapter[T any] interface {
	Info() SourceInfo

	// FetchRaw returns upstream items in upstream order.
	FetchRaw(ctx context.Context) ([]T, error)

	// Normalize is a pure mapping; all protocol-specific semantics live here.
	Normalize(raw T) (snapshot.Snapshot, error)
}

// PageSpec tells the rendered variant how to read a JavaScript-rendered table.
type PageSpec struct {
	URL           string
	ReadySelector string
	// RowsScript must evaluate to a JSON string holding an array of rows.
	RowsScript string
	// NextSelector is the pagination control; empty means single page.
	NextSelector string
	MaxPages     int
	NavTimeout   time.Duration
}

// PageAdapter maps rows extracted from a rendered page onto Snapshots.
type PageAdapter[T any] interface {
	Info() SourceInfo
	Page() PageSpec
	Normalize(raw T) (snapshot.Snapshot, error)
}

// CrawlResult is the output of one crawl.
type CrawlResult struct {
	Source     string              `json:"source"`
	Network    string              `json:"network,omitempty"`
	Category   string              `json:"category,omitempty"`
	CapturedAt time.Time           `json:"capturedAt"`
	DurationMs int64               `json:"durationMs"`
	ItemsFound int                 `json:"itemsFound"`
	Data       []snapshot.Snapshot `json:"data"`
}

// Crawler runs fetch and normalize for one source.
type Crawler interface {
	Info() SourceInfo
	Crawl(ctx context.Context) (*CrawlResult, error)
}

// RetryPolicy bounds retries of a whole rendering attempt. Attempt n waits
// Backoff*n before the next one.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}
