// Package gather collects the page artifacts the installability audit
// consumes: the raw manifest text, service worker registration state, and a
// start_url cache probe. The primary collector drives headless Chrome over
// CDP; a plain-HTTP fallback exists for environments without a browser.
package gather

import (
	"context"
	"time"

	"github.com/garciaii/lighthouse/internal/audit"
)

// Run is the collected artifact bundle for one page load.
type Run struct {
	ID        string          `json:"id"`
	PageURL   string          `json:"page_url"`
	Artifacts audit.Artifacts `json:"artifacts"`
	Duration  time.Duration   `json:"duration"`
}

// Source produces an artifact bundle for a page. Both the browser-backed
// Gatherer and the HTTP Fetcher satisfy it.
type Source interface {
	Gather(ctx context.Context, pageURL string) (*Run, error)
}

// Config holds browser gathering configuration.
type Config struct {
	DebuggerURL         string   `json:"debugger_url"`
	Launch              []string `json:"launch"`
	Headless            bool     `json:"headless"`
	ViewportWidth       int      `json:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
}

// DefaultConfig returns sensible defaults for an unattended audit run.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1350,
		ViewportHeight:      940,
		NavigationTimeoutMs: 30000,
	}
}

// IsHeadless returns the headless setting.
func (c Config) IsHeadless() bool {
	return c.Headless
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1350
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 940
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}
