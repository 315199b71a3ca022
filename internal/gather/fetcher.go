package gather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garciaii/lighthouse/internal/audit"
	"github.com/garciaii/lighthouse/internal/manifest"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// maxManifestBytes bounds how much manifest text the fetcher will read.
const maxManifestBytes = 1 << 20

// Fetcher collects page artifacts over plain HTTP, without a browser. It can
// discover and parse the manifest, but cannot observe service worker state or
// cache storage; those artifacts degrade accordingly and the start_url status
// reflects a live fetch.
type Fetcher struct {
	client *http.Client
	log    *zap.Logger
}

// NewFetcher creates an HTTP fetcher. log may be nil.
func NewFetcher(timeout time.Duration, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Gather implements Source. The service worker artifact is always empty and
// the start_url artifact carries an advisory noting that no offline
// simulation was applied.
func (f *Fetcher) Gather(ctx context.Context, pageURL string) (*Run, error) {
	started := time.Now()
	run := &Run{ID: uuid.NewString(), PageURL: pageURL}

	body, finalURL, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	arts := audit.Artifacts{
		URL:      audit.URLArtifact{FinalURL: finalURL.String()},
		StartURL: audit.StartURLArtifact{StatusCode: -1},
	}

	manifestHref := findManifestHref(body)
	if manifestHref == "" {
		run.Artifacts = arts
		run.Duration = time.Since(started)
		return run, nil
	}

	manifestURL, err := finalURL.Parse(manifestHref)
	if err != nil {
		f.log.Warn("manifest link unparsable", zap.String("href", manifestHref), zap.Error(err))
		run.Artifacts = arts
		run.Duration = time.Since(started)
		return run, nil
	}

	rawText, _, err := f.get(ctx, manifestURL.String())
	if err != nil {
		f.log.Warn("manifest fetch failed", zap.String("url", manifestURL.String()), zap.Error(err))
		rawText = ""
	}
	parsed := manifest.Parse(rawText, manifestURL, finalURL)
	arts.Manifest = &parsed

	arts.StartURL = f.probeStartURL(ctx, &parsed)

	run.Artifacts = arts
	run.Duration = time.Since(started)
	return run, nil
}

// probeStartURL does a live GET of the start_url. Without a browser there is
// no cache to consult, so the status is advisory and flagged as such.
func (f *Fetcher) probeStartURL(ctx context.Context, m *manifest.Manifest) audit.StartURLArtifact {
	if m.Value == nil || !m.Value.StartURL.Present() {
		return audit.StartURLArtifact{
			StatusCode:  -1,
			DebugString: "no usable start_url to probe",
		}
	}
	target := m.Value.StartURL.Value.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return audit.StartURLArtifact{StatusCode: -1, DebugString: fmt.Sprintf("start_url request: %v", err)}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return audit.StartURLArtifact{StatusCode: -1, DebugString: fmt.Sprintf("start_url fetch: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxManifestBytes))

	return audit.StartURLArtifact{
		StatusCode:  resp.StatusCode,
		DebugString: "start_url status reflects a live fetch, not an offline cache probe",
	}
}

func (f *Fetcher) get(ctx context.Context, target string) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return "", nil, err
	}
	return string(body), resp.Request.URL, nil
}

// findManifestHref walks the document for the first <link> whose rel tokens
// include "manifest" and returns its href, or "".
func findManifestHref(document string) string {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return ""
	}

	var walk func(n *html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = attr.Val
				case "href":
					href = attr.Val
				}
			}
			for _, token := range strings.Fields(rel) {
				if strings.EqualFold(token, "manifest") && href != "" {
					return href
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if found := walk(child); found != "" {
				return found
			}
		}
		return ""
	}
	return walk(root)
}
