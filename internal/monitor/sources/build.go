package sources

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/web3-frozen/yield-tracker/internal/browser"
	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
)

// Deps are the shared resources adapters are built with.
type Deps struct {
	Browser     browser.Browser
	Retry       monitor.RetryPolicy
	NavTimeout  time.Duration
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Build returns one crawler per enabled registry entry. Each API adapter gets
// its own limiter so a slow source never starves another.
func Build(reg *config.Registry, deps Deps) []monitor.Crawler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := func() *httpClient {
		return newHTTPClient(deps.HTTPTimeout, rate.NewLimiter(rate.Limit(reg.RequestsPerSecond), 1))
	}

	var out []monitor.Crawler
	if c := reg.DefiLlama; c != nil && !c.Disabled {
		out = append(out, monitor.Direct(NewDefiLlama(*c, client())))
	}
	if c := reg.Merkl; c != nil && !c.Disabled {
		out = append(out, monitor.Direct(NewMerkl(*c, client(), logger.With("source", "merkl"))))
	}
	if c := reg.Turtle; c != nil && !c.Disabled {
		out = append(out, monitor.Direct(NewTurtle(*c, client())))
	}
	for _, s := range reg.Subgraphs {
		if s.Disabled {
			continue
		}
		out = append(out, monitor.Direct(NewSubgraph(s, client())))
	}
	for _, e := range reg.Endpoints {
		if e.Disabled {
			continue
		}
		out = append(out, monitor.Direct(NewEndpoint(e, client())))
	}
	for _, p := range reg.Pages {
		if p.Disabled {
			continue
		}
		if deps.Browser == nil {
			logger.Warn("page source skipped: no browser configured", "source", p.Name)
			continue
		}
		out = append(out, monitor.Rendered(NewPage(p, deps.NavTimeout), deps.Browser, deps.Retry, logger))
	}
	return out
}
