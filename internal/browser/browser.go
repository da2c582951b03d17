// Package browser opens isolated headless-Chrome sessions for sources whose data
// only exists in a JavaScript-rendered document.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

// Browser opens rendering sessions. Each session owns its own browser process
// and profile so attempts never share state.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one isolated rendering session. Close must be called on every path.
type Session interface {
	// Navigate loads url and waits until readySelector is visible.
	Navigate(ctx context.Context, url, readySelector string) error
	// Evaluate runs script, which must return a JSON string, and decodes it into dst.
	Evaluate(ctx context.Context, script string, dst any) error
	// ClickNext clicks the pagination control matched by selector.
	// It reports false when the control is absent or disabled.
	ClickNext(ctx context.Context, selector string) (bool, error)
	Close()
}

// Config controls how Chrome is launched.
type Config struct {
	ExecPath string
	// Settle is how long to wait after navigation or a page click for the table to re-render.
	Settle time.Duration
}

// Chrome launches a fresh headless Chrome per session.
type Chrome struct {
	cfg    Config
	logger *slog.Logger
}

func NewChrome(cfg Config, logger *slog.Logger) *Chrome {
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	return &Chrome{cfg: cfg, logger: logger}
}

func (c *Chrome) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
		chromedp.UserDataDir(profileDir),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	return opts
}

func (c *Chrome) NewSession(ctx context.Context) (Session, error) {
	profileDir, err := os.MkdirTemp("", "chromedp-profile-")
	if err != nil {
		return nil, fmt.Errorf("create chrome profile: %w", err)
	}

	// The browser lifetime is bound to the session, not to ctx; Close releases it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions(profileDir)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tab:        tabCtx,
		settle:     c.cfg.Settle,
		profileDir: profileDir,
		release: func() {
			tabCancel()
			allocCancel()
		},
	}
	// An empty Run starts the browser.
	if err := s.run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	c.logger.Debug("chrome session started", "profile", profileDir)
	return s, nil
}

type chromeSession struct {
	tab        context.Context
	settle     time.Duration
	profileDir string
	release    func()
}

// run executes actions on the tab while honouring ctx's deadline and cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		runCtx, cancelDL = context.WithDeadline(runCtx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url, readySelector string) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if readySelector != "" {
		actions = append(actions, chromedp.WaitVisible(readySelector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.Sleep(s.settle))
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, dst any) error {
	var raw string
	if err := s.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}

const (
	nextAbsent   = "absent"
	nextDisabled = "disabled"
	nextClicked  = "clicked"
)

// nextScript returns a script that clicks selector unless it is missing or disabled.
func nextScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return %q;
	if (el.disabled || el.getAttribute('aria-disabled') === 'true' || el.classList.contains('disabled')) return %q;
	el.click();
	return %q;
})()`, strconv.Quote(selector), nextAbsent, nextDisabled, nextClicked)
}

func (s *chromeSession) ClickNext(ctx context.Context, selector string) (bool, error) {
	var state string
	if err := s.run(ctx, chromedp.Evaluate(nextScript(selector), &state)); err != nil {
		return false, fmt.Errorf("click next: %w", err)
	}
	if state != nextClicked {
		return false, nil
	}
	if err := s.run(ctx, chromedp.Sleep(s.settle)); err != nil {
		return false, fmt.Errorf("wait after next: %w", err)
	}
	return true, nil
}

// Close stops the browser and removes its profile directory.
func (s *chromeSession) Close() {
	if s.release == nil {
		return
	}
	s.release()
	s.release = nil
	if s.profileDir != "" {
		_ = os.RemoveAll(s.profileDir)
	}
}
