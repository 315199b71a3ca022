package gather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/garciaii/lighthouse/internal/audit"
	"github.com/garciaii/lighthouse/internal/manifest"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// registrationsJS enumerates service worker versions via the page's own
// registration objects. Each non-null worker slot contributes one entry with
// its current lifecycle state.
const registrationsJS = `
() => navigator.serviceWorker.getRegistrations().then(regs => {
	const versions = [];
	for (const reg of regs) {
		for (const worker of [reg.installing, reg.waiting, reg.active]) {
			if (worker) {
				versions.push({ status: worker.state, script_url: worker.scriptURL });
			}
		}
	}
	return versions;
})
`

// startURLProbeJS checks whether the start URL is retrievable from cache
// storage without touching the network.
const startURLProbeJS = `
(u) => caches.match(u).then(hit => {
	if (hit) {
		return { status_code: 200 };
	}
	return { status_code: -1, debug_string: 'start_url is not in cache storage: ' + u };
}).catch(err => ({ status_code: -1, debug_string: 'cache storage probe failed: ' + err }))
`

// Gatherer owns the Chrome instance used to collect page artifacts.
type Gatherer struct {
	cfg        Config
	log        *zap.Logger
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// New creates a gatherer. log may be nil.
func New(cfg Config, log *zap.Logger) *Gatherer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gatherer{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one.
func (g *Gatherer) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.browser != nil {
		if _, err := g.browser.Version(); err == nil {
			return nil
		}
		g.log.Warn("stale browser connection, reconnecting")
		_ = g.browser.Close()
		g.browser = nil
		g.controlURL = ""
	}

	controlURL := g.cfg.DebuggerURL
	if controlURL == "" && len(g.cfg.Launch) > 0 {
		bin := g.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(g.cfg.IsHeadless())
		for _, rawFlag := range g.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fall back to a plain launch of the same binary.
			fallback := launcher.New().Bin(bin).Headless(g.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(g.cfg.IsHeadless()).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	g.browser = browser
	g.controlURL = controlURL
	g.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

func (g *Gatherer) ensureStarted(ctx context.Context) error {
	g.mu.Lock()
	started := g.browser != nil
	g.mu.Unlock()
	if started {
		return nil
	}
	return g.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (g *Gatherer) ControlURL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.controlURL
}

// Shutdown closes the browser.
func (g *Gatherer) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if g.browser != nil {
		err = g.browser.Close()
		g.browser = nil
	}
	g.controlURL = ""
	return err
}

// Gather loads pageURL in a fresh incognito page and collects the artifact
// bundle: manifest text and URL via the devtools app-manifest command,
// service worker versions, and a start_url cache probe.
func (g *Gatherer) Gather(ctx context.Context, pageURL string) (*Run, error) {
	if err := g.ensureStarted(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	browser := g.browser
	g.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	started := time.Now()
	run := &Run{ID: uuid.NewString(), PageURL: pageURL}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             g.cfg.GetViewportWidth(),
		Height:            g.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		g.log.Warn("failed to set viewport", zap.Error(err))
	}

	page = page.Context(ctx)
	if err := page.Timeout(g.cfg.NavigationTimeout()).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.Timeout(g.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		g.log.Warn("page load wait ended early", zap.String("url", pageURL), zap.Error(err))
	}

	arts := audit.Artifacts{
		StartURL: audit.StartURLArtifact{StatusCode: -1},
	}

	if info, err := page.Info(); err == nil {
		arts.URL.FinalURL = info.URL
	} else {
		arts.URL.FinalURL = pageURL
	}
	docURL, _ := url.Parse(arts.URL.FinalURL)

	arts.Manifest = g.fetchManifest(page, docURL)

	versions, err := g.serviceWorkerVersions(page)
	if err != nil {
		g.log.Warn("service worker enumeration failed", zap.String("url", pageURL), zap.Error(err))
	}
	arts.ServiceWorker.Versions = versions

	arts.StartURL = g.probeStartURL(page, arts.Manifest)

	run.Artifacts = arts
	run.Duration = time.Since(started)
	g.log.Info("gather complete",
		zap.String("run_id", run.ID),
		zap.String("url", pageURL),
		zap.Bool("manifest", arts.Manifest != nil),
		zap.Int("sw_versions", len(versions)),
		zap.Duration("duration", run.Duration))
	return run, nil
}

// fetchManifest pulls the declared manifest via the devtools command and
// parses it. Returns nil when the page declares no manifest at all.
func (g *Gatherer) fetchManifest(page *rod.Page, docURL *url.URL) *manifest.Manifest {
	res, err := proto.PageGetAppManifest{}.Call(page)
	if err != nil {
		g.log.Warn("app manifest command failed", zap.Error(err))
		return nil
	}
	if res.URL == "" && res.Data == "" {
		return nil
	}
	manifestURL, err := url.Parse(res.URL)
	if err != nil || !manifestURL.IsAbs() {
		manifestURL = docURL
	}
	parsed := manifest.Parse(res.Data, manifestURL, docURL)
	return &parsed
}

// serviceWorkerVersions evaluates the registration enumeration script and
// maps the result onto artifact records.
func (g *Gatherer) serviceWorkerVersions(page *rod.Page) ([]audit.ServiceWorkerVersion, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           registrationsJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil, fmt.Errorf("enumerate registrations: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal registrations: %w", err)
	}
	return mapRegistrations(raw)
}

// mapRegistrations decodes the registration JSON emitted by registrationsJS.
func mapRegistrations(raw []byte) ([]audit.ServiceWorkerVersion, error) {
	var entries []struct {
		Status    string `json:"status"`
		ScriptURL string `json:"script_url"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	versions := make([]audit.ServiceWorkerVersion, 0, len(entries))
	for _, e := range entries {
		if e.Status == "" {
			continue
		}
		versions = append(versions, audit.ServiceWorkerVersion{
			Status:    audit.VersionStatus(e.Status),
			ScriptURL: e.ScriptURL,
		})
	}
	return versions, nil
}

// probeStartURL checks cache storage for the manifest's start_url. When the
// manifest carries no usable start_url there is nothing to probe and the
// artifact stays at -1 with an explanatory advisory.
func (g *Gatherer) probeStartURL(page *rod.Page, m *manifest.Manifest) audit.StartURLArtifact {
	if m == nil || m.Value == nil || !m.Value.StartURL.Present() {
		return audit.StartURLArtifact{
			StatusCode:  -1,
			DebugString: "no usable start_url to probe",
		}
	}
	startURL := m.Value.StartURL.Value.String()

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           startURLProbeJS,
		JSArgs:       []interface{}{startURL},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return audit.StartURLArtifact{
			StatusCode:  -1,
			DebugString: fmt.Sprintf("start_url cache probe failed: %v", err),
		}
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return audit.StartURLArtifact{
			StatusCode:  -1,
			DebugString: fmt.Sprintf("start_url probe result unreadable: %v", err),
		}
	}
	var probe audit.StartURLArtifact
	if err := json.Unmarshal(raw, &probe); err != nil {
		return audit.StartURLArtifact{
			StatusCode:  -1,
			DebugString: fmt.Sprintf("start_url probe result unreadable: %v", err),
		}
	}
	return probe
}
