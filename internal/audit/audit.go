// Package audit runs installability eligibility checks against gathered page
// artifacts and aggregates them into a single verdict with per-criterion
// diagnostics.
package audit

import (
	"context"
)

// Result is the verdict of one audit run. Passed is true iff the accumulated
// failure list is empty. Explanation is empty iff the audit passed without a
// short-circuit (no manifest at all, unparsable manifest). Warnings are
// advisories that never affect Passed.
type Result struct {
	Passed      bool     `json:"passed"`
	Explanation string   `json:"explanation,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Details     Details  `json:"details"`
}

// Details carries structured per-criterion findings.
type Details struct {
	Items []DetailItem `json:"items"`
}

// DetailItem holds the failure messages accumulated by one audit run, in
// check-evaluation order.
type DetailItem struct {
	Failures []string `json:"failures"`
}

// Audit is the uniform contract shared by every audit in the suite. Run is
// synchronous and deterministic; the context is part of the signature for
// uniformity with audits that do suspend, and may be ignored by those that
// don't. Run must return a Result for any well-typed input, never panic.
type Audit interface {
	Name() string
	Run(ctx context.Context, artifacts Artifacts) Result
}
