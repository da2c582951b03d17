package browser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNextScriptQuotesSelector(t *testing.T) {
	script := nextScript(`button[aria-label="Next page"]`)
	if !strings.Contains(script, `document.querySelector("button[aria-label=\"Next page\"]")`) {
		t.Errorf("selector not quoted as a JS string literal:\n%s", script)
	}
	for _, state := range []string{nextAbsent, nextDisabled, nextClicked} {
		if !strings.Contains(script, `"`+state+`"`) {
			t.Errorf("script missing state %q", state)
		}
	}
}

func TestAllocatorOptionsExecPath(t *testing.T) {
	withPath := NewChrome(Config{ExecPath: "/usr/bin/chromium"}, nil)
	without := NewChrome(Config{}, nil)
	if got, base := len(withPath.allocatorOptions("/tmp/p")), len(without.allocatorOptions("/tmp/p")); got != base+1 {
		t.Errorf("options with exec path = %d, want %d", got, base+1)
	}
	if without.cfg.Settle <= 0 {
		t.Error("Settle default not applied")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir, err := os.MkdirTemp("", "chromedp-profile-")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Local State"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	calls := 0
	s := &chromeSession{profileDir: dir, release: func() { calls++ }}
	s.Close()
	s.Close()
	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("profile dir %s still present after Close (stat err = %v)", dir, err)
	}
}
