package audit

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/garciaii/lighthouse/internal/manifest"

	"github.com/google/go-cmp/cmp"
)

const validManifestText = `{
	"name": "Example App",
	"short_name": "Example",
	"start_url": "/",
	"icons": [{"src": "icon-192.png", "sizes": "192x192"}]
}`

func parseManifest(t *testing.T, raw string) *manifest.Manifest {
	t.Helper()
	manifestURL, err := url.Parse("https://example.com/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	docURL, err := url.Parse("https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	m := manifest.Parse(raw, manifestURL, docURL)
	return &m
}

// eligibleArtifacts is the all-green fixture: full manifest, activated
// service worker, cacheable start_url.
func eligibleArtifacts(t *testing.T) Artifacts {
	t.Helper()
	return Artifacts{
		Manifest: parseManifest(t, validManifestText),
		ServiceWorker: ServiceWorkerArtifact{
			Versions: []ServiceWorkerVersion{
				{Status: StatusActivated, ScriptURL: "https://example.com/sw.js"},
			},
		},
		StartURL: StartURLArtifact{StatusCode: 200},
		URL:      URLArtifact{FinalURL: "https://example.com/"},
	}
}

func failuresOf(r Result) []string {
	if len(r.Details.Items) == 0 {
		return nil
	}
	return r.Details.Items[0].Failures
}

func TestRun_Passes(t *testing.T) {
	a := NewInstallableManifest(nil)
	res := a.Run(context.Background(), eligibleArtifacts(t))

	if !res.Passed {
		t.Fatalf("Passed = false: %q %v", res.Explanation, failuresOf(res))
	}
	if res.Explanation != "" {
		t.Fatalf("Explanation = %q, want empty on pass", res.Explanation)
	}
	if len(failuresOf(res)) != 0 {
		t.Fatalf("Failures = %v, want none", failuresOf(res))
	}
}

func TestRun_NoManifestArtifact(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.Manifest = nil

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	if res.Passed {
		t.Fatal("Passed = true, want false")
	}
	if !strings.Contains(res.Explanation, "No manifest was fetched") {
		t.Fatalf("Explanation = %q", res.Explanation)
	}
	if len(res.Details.Items) != 0 {
		t.Fatalf("Details.Items = %v, want empty on short-circuit", res.Details.Items)
	}
}

func TestRun_UnparsableManifest(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.Manifest = parseManifest(t, `{"name": `)

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	if res.Passed {
		t.Fatal("Passed = true, want false")
	}
	if !strings.Contains(res.Explanation, "parse") || !strings.Contains(res.Explanation, "JSON") {
		t.Fatalf("Explanation = %q, want JSON parse failure", res.Explanation)
	}
	if len(res.Details.Items) != 0 {
		t.Fatalf("Details.Items = %v, want empty on short-circuit", res.Details.Items)
	}
}

func TestRun_EmptyObjectManifest(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.Manifest = parseManifest(t, "{}")

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	failures := failuresOf(res)
	if len(failures) != 4 {
		t.Fatalf("len(Failures) = %d, want 4: %v", len(failures), failures)
	}
	for i, want := range []string{"start_url", "short_name", "name", "icons"} {
		if !strings.Contains(failures[i], want) {
			t.Errorf("Failures[%d] = %q, want mention of %s", i, failures[i], want)
		}
	}
	if res.Explanation == "" || !strings.Contains(res.Explanation, ";") {
		t.Errorf("Explanation = %q, want enumeration of all failures", res.Explanation)
	}
}

func TestRun_SingleFieldRemoval(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "start_url",
			raw:  `{"name": "Example App", "short_name": "Example", "icons": [{"src": "i.png"}]}`,
			want: "start_url",
		},
		{
			name: "short_name",
			raw:  `{"name": "Example App", "start_url": "/", "icons": [{"src": "i.png"}]}`,
			want: "short_name",
		},
		{
			name: "name",
			raw:  `{"short_name": "Example", "start_url": "/", "icons": [{"src": "i.png"}]}`,
			want: "name",
		},
		{
			name: "icons",
			raw:  `{"name": "Example App", "short_name": "Example", "start_url": "/"}`,
			want: "icons",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			arts := eligibleArtifacts(t)
			arts.Manifest = parseManifest(t, tc.raw)

			res := NewInstallableManifest(nil).Run(context.Background(), arts)
			failures := failuresOf(res)
			if len(failures) != 1 {
				t.Fatalf("len(Failures) = %d, want 1: %v", len(failures), failures)
			}
			if !strings.Contains(failures[0], tc.want) {
				t.Fatalf("Failures[0] = %q, want mention of %s", failures[0], tc.want)
			}
			if !strings.Contains(res.Explanation, failures[0]) {
				t.Fatalf("Explanation = %q, want it to name the one failure", res.Explanation)
			}
		})
	}
}

func TestRun_NoServiceWorker(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.ServiceWorker = ServiceWorkerArtifact{}
	arts.StartURL = StartURLArtifact{StatusCode: -1}

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	failures := failuresOf(res)
	if len(failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1: %v", len(failures), failures)
	}
	if !strings.Contains(failures[0], "service worker") {
		t.Fatalf("Failures[0] = %q, want mention of service worker", failures[0])
	}
}

func TestRun_ServiceWorkerNotActivated(t *testing.T) {
	// A registered but never-activated worker fails the service worker check
	// and, having a registration, also gets the cache probe reported.
	arts := eligibleArtifacts(t)
	arts.ServiceWorker = ServiceWorkerArtifact{
		Versions: []ServiceWorkerVersion{
			{Status: StatusInstalling, ScriptURL: "https://example.com/sw.js"},
		},
	}
	arts.StartURL = StartURLArtifact{StatusCode: -1}

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	failures := failuresOf(res)
	if len(failures) != 2 {
		t.Fatalf("len(Failures) = %d, want 2: %v", len(failures), failures)
	}
	if !strings.Contains(failures[0], "service worker") {
		t.Errorf("Failures[0] = %q, want service worker first", failures[0])
	}
	if !strings.Contains(failures[1], "start_url") {
		t.Errorf("Failures[1] = %q, want start_url cacheability second", failures[1])
	}
}

func TestRun_StartURLNotCached(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.StartURL = StartURLArtifact{StatusCode: -1}

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	failures := failuresOf(res)
	if len(failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1: %v", len(failures), failures)
	}
	if !strings.Contains(failures[0], "start_url") {
		t.Fatalf("Failures[0] = %q, want mention of start_url", failures[0])
	}
	// Distinct wording from the manifest-declaration failure.
	if failures[0] == failStartURL {
		t.Fatalf("cacheability failure reused the manifest-declaration wording: %q", failures[0])
	}
}

func TestRun_WarningSurfacedOnPass(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.StartURL.DebugString = "Warning!"

	res := NewInstallableManifest(nil).Run(context.Background(), arts)
	if !res.Passed {
		t.Fatalf("Passed = false: %v", failuresOf(res))
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "Warning!" {
		t.Fatalf("Warnings = %v, want exactly the advisory", res.Warnings)
	}
}

func TestRun_PassedMatchesFailureCount(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Artifacts, *testing.T)
	}{
		{name: "all_green", mutate: func(a *Artifacts, t *testing.T) {}},
		{name: "no_manifest", mutate: func(a *Artifacts, t *testing.T) { a.Manifest = nil }},
		{name: "empty_manifest", mutate: func(a *Artifacts, t *testing.T) { a.Manifest = parseManifest(t, "{}") }},
		{name: "no_sw", mutate: func(a *Artifacts, t *testing.T) { a.ServiceWorker = ServiceWorkerArtifact{} }},
		{name: "uncached", mutate: func(a *Artifacts, t *testing.T) { a.StartURL = StartURLArtifact{StatusCode: -1} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			arts := eligibleArtifacts(t)
			tc.mutate(&arts, t)
			res := NewInstallableManifest(nil).Run(context.Background(), arts)
			if arts.Manifest != nil && arts.Manifest.Value != nil {
				if res.Passed != (len(failuresOf(res)) == 0) {
					t.Fatalf("Passed = %v with %d failures", res.Passed, len(failuresOf(res)))
				}
			} else if res.Passed {
				t.Fatal("Passed = true on a short-circuit tier")
			}
		})
	}
}

func TestRun_Idempotent(t *testing.T) {
	arts := eligibleArtifacts(t)
	arts.Manifest = parseManifest(t, `{"name": "Example App"}`)
	arts.StartURL = StartURLArtifact{StatusCode: -1, DebugString: "probe advisory"}

	a := NewInstallableManifest(nil)
	first := a.Run(context.Background(), arts)
	second := a.Run(context.Background(), arts)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated audit differs (-first +second):\n%s", diff)
	}
}
