package audit

import (
	"context"
	"strings"

	"github.com/garciaii/lighthouse/internal/manifest"

	"go.uber.org/zap"
)

// Failure messages, one per eligibility criterion. The manifest start_url
// message and the cacheability message are deliberately distinct: the former
// is about the manifest declaration, the latter about offline retrieval.
const (
	failStartURL      = "Manifest does not have `start_url`"
	failShortName     = "Manifest does not have `short_name`"
	failName          = "Manifest does not have `name`"
	failIcons         = "Manifest does not have a usable `icons` entry"
	failServiceWorker = "Site does not register a service worker with an activated version"
	failStartURLCache = "Unable to fetch `start_url` from the cache while offline"
)

// Explanations for the two terminal tiers.
const (
	explainNoManifest  = "No manifest was fetched"
	explainBadManifest = "Manifest failed to parse as valid JSON"
)

// installCheck is one independent eligibility criterion. run returns the
// failure message, or "" on pass. All checks are evaluated unconditionally so
// every unmet criterion is reported together.
type installCheck struct {
	id  string
	run func(fields *manifest.Fields, artifacts Artifacts) string
}

// installChecks fixes the evaluation order, which in turn fixes the order of
// failure messages and keeps explanations deterministic.
var installChecks = []installCheck{
	{id: "start_url", run: func(f *manifest.Fields, _ Artifacts) string {
		if !f.StartURL.Present() {
			return failStartURL
		}
		return ""
	}},
	{id: "short_name", run: func(f *manifest.Fields, _ Artifacts) string {
		if !f.ShortName.Present() {
			return failShortName
		}
		return ""
	}},
	{id: "name", run: func(f *manifest.Fields, _ Artifacts) string {
		if !f.Name.Present() {
			return failName
		}
		return ""
	}},
	{id: "icons", run: func(f *manifest.Fields, _ Artifacts) string {
		if !f.Icons.Present() || len(*f.Icons.Value) == 0 {
			return failIcons
		}
		return ""
	}},
	{id: "service_worker", run: func(_ *manifest.Fields, a Artifacts) string {
		if !a.ServiceWorker.HasActivated() {
			return failServiceWorker
		}
		return ""
	}},
	// The cache probe only means something when a service worker is
	// registered at all; with zero versions the service_worker failure
	// already covers it. A registered-but-not-activated worker still gets
	// both failures reported.
	{id: "start_url_cacheable", run: func(_ *manifest.Fields, a Artifacts) string {
		if len(a.ServiceWorker.Versions) == 0 {
			return ""
		}
		if a.StartURL.StatusCode != 200 {
			return failStartURLCache
		}
		return ""
	}},
}

// InstallableManifest decides whether a page meets the criteria a browser
// uses before offering an install prompt: a parseable manifest with the
// required members, an activated service worker, and a cacheable start_url.
type InstallableManifest struct {
	log *zap.Logger
}

// NewInstallableManifest returns the audit. log may be nil.
func NewInstallableManifest(log *zap.Logger) *InstallableManifest {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstallableManifest{log: log}
}

// Name implements Audit.
func (a *InstallableManifest) Name() string {
	return "installable-manifest"
}

// Run implements Audit. Evaluation is tiered: a missing manifest artifact and
// an unparsable manifest are terminal and short-circuit with an explanation
// only; otherwise every check runs and its failures accumulate into one
// detail item.
func (a *InstallableManifest) Run(_ context.Context, artifacts Artifacts) Result {
	if artifacts.Manifest == nil {
		a.log.Debug("installability short-circuit", zap.String("reason", "no manifest artifact"))
		return Result{Explanation: explainNoManifest}
	}
	if artifacts.Manifest.Value == nil {
		a.log.Debug("installability short-circuit",
			zap.String("reason", "unparsable manifest"),
			zap.String("parse_error", artifacts.Manifest.DebugString))
		return Result{Explanation: explainBadManifest}
	}

	fields := artifacts.Manifest.Value
	var failures []string
	for _, check := range installChecks {
		msg := check.run(fields, artifacts)
		if msg == "" {
			continue
		}
		a.log.Debug("installability check failed",
			zap.String("check", check.id),
			zap.String("failure", msg))
		failures = append(failures, msg)
	}

	result := Result{
		Passed:  len(failures) == 0,
		Details: Details{Items: []DetailItem{{Failures: failures}}},
	}
	if len(failures) > 0 {
		result.Explanation = explainFailures(failures)
	}
	if artifacts.StartURL.DebugString != "" {
		result.Warnings = append(result.Warnings, artifacts.StartURL.DebugString)
	}
	return result
}

// explainFailures summarizes the failure list: a lone failure is named
// directly, several are enumerated.
func explainFailures(failures []string) string {
	if len(failures) == 1 {
		return "Installability check failed: " + failures[0]
	}
	return "Installability checks failed: " + strings.Join(failures, "; ")
}
