package audit

import (
	"github.com/garciaii/lighthouse/internal/manifest"
)

// VersionStatus is the lifecycle state of one service worker version, as
// reported by the page instrumentation.
type VersionStatus string

const (
	StatusInstalling VersionStatus = "installing"
	StatusInstalled  VersionStatus = "installed"
	StatusActivating VersionStatus = "activating"
	StatusActivated  VersionStatus = "activated"
	StatusRedundant  VersionStatus = "redundant"
)

// ServiceWorkerVersion is one registered service worker version.
type ServiceWorkerVersion struct {
	Status    VersionStatus `json:"status"`
	ScriptURL string        `json:"script_url"`
}

// ServiceWorkerArtifact enumerates the service worker versions registered by
// the page. Supplied by the gatherer; immutable input to audits.
type ServiceWorkerArtifact struct {
	Versions []ServiceWorkerVersion `json:"versions"`
}

// HasActivated reports whether any registered version reached the activated
// state.
func (a ServiceWorkerArtifact) HasActivated() bool {
	for _, v := range a.Versions {
		if v.Status == StatusActivated {
			return true
		}
	}
	return false
}

// StartURLArtifact is the result of probing the manifest's start_url from
// cache. StatusCode is 200 on a cache hit and -1 when the URL was not
// retrievable; DebugString carries a non-fatal advisory to surface regardless
// of pass or fail.
type StartURLArtifact struct {
	StatusCode  int    `json:"status_code"`
	DebugString string `json:"debug_string,omitempty"`
}

// URLArtifact carries the resolved page URL after redirects.
type URLArtifact struct {
	FinalURL string `json:"final_url"`
}

// Artifacts is the bundle of page evidence an audit consumes. Manifest is nil
// when the gatherer found no manifest link at all, which is distinct from a
// manifest that was fetched but failed to parse.
type Artifacts struct {
	Manifest      *manifest.Manifest    `json:"manifest"`
	ServiceWorker ServiceWorkerArtifact `json:"service_worker"`
	StartURL      StartURLArtifact      `json:"start_url"`
	URL           URLArtifact           `json:"url"`
}
