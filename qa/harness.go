package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evanhollis/covergraph/learn"
	"github.com/evanhollis/covergraph/query"
)

// CaseResult is the outcome of one case with its failure detail.
type CaseResult struct {
	Suite     string   `json:"suite"`
	Case      string   `json:"case"`
	Query     string   `json:"query"`
	Passed    bool     `json:"passed"`
	Failures  []string `json:"failures,omitempty"`
	Outcome   *Outcome `json:"outcome,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// SuiteReport aggregates one suite.
type SuiteReport struct {
	Name    string       `json:"name"`
	Total   int          `json:"total"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []CaseResult `json:"results"`
}

// Report is a full harness run.
type Report struct {
	Suites             []SuiteReport `json:"suites"`
	Total              int           `json:"total"`
	Passed             int           `json:"passed"`
	Failed             int           `json:"failed"`
	PassRate           float64       `json:"pass_rate"`
	AvgLatencyMs       float64       `json:"avg_latency_ms"`
	Errors             int           `json:"errors"`
	ComplianceFailures int           `json:"compliance_failures"`
	GeneratedAt        time.Time     `json:"generated_at"`
	RunTime            time.Duration `json:"run_time"`
}

// Failures flattens every failed case across suites.
func (r *Report) Failures() []CaseResult {
	var out []CaseResult
	for _, s := range r.Suites {
		for _, c := range s.Results {
			if !c.Passed {
				out = append(out, c)
			}
		}
	}
	return out
}

// RunSuites executes the given suites against the runner's store and
// returns the aggregated report.
func (r *Runner) RunSuites(ctx context.Context, suites []Suite) *Report {
	start := time.Now()
	rep := &Report{GeneratedAt: start.UTC()}

	var latencyTotal int64
	for _, suite := range suites {
		sr := SuiteReport{Name: suite.Name}
		for _, c := range suite.Cases {
			res := r.runCase(ctx, suite.Name, c)
			sr.Total++
			if res.Passed {
				sr.Passed++
			} else {
				sr.Failed++
				if suite.Name == SuiteCompliance {
					rep.ComplianceFailures++
				}
			}
			if res.Outcome != nil && res.Outcome.Err != nil {
				rep.Errors++
			}
			latencyTotal += res.ElapsedMs
			sr.Results = append(sr.Results, res)
		}
		rep.Suites = append(rep.Suites, sr)
		rep.Total += sr.Total
		rep.Passed += sr.Passed
		rep.Failed += sr.Failed
	}

	if rep.Total > 0 {
		rep.PassRate = float64(rep.Passed) / float64(rep.Total)
		rep.AvgLatencyMs = float64(latencyTotal) / float64(rep.Total)
	}
	rep.RunTime = time.Since(start)
	return rep
}

// RunAll runs the builtin suites.
func (r *Runner) RunAll(ctx context.Context) *Report {
	return r.RunSuites(ctx, BuiltinSuites())
}

func (r *Runner) runCase(ctx context.Context, suiteName string, c Case) CaseResult {
	uc := personas[c.Persona]

	// Setup turns accumulate session context the way a conversation
	// would, so follow-up questions see earlier identifiers.
	if len(c.Setup) > 0 {
		session := learn.NewSession(uc.UserID)
		for _, q := range c.Setup {
			out := r.Ask(ctx, q, mergeContext(uc, session.Context()))
			session.Add(learn.Turn{
				Query:  q,
				Intent: out.Intent,
				Params: out.Params,
				Answer: out.Answer,
				At:     time.Now(),
			})
		}
		uc = mergeContext(uc, session.Context())
	}

	out := r.Ask(ctx, c.Query, uc)
	failures := checkExpect(c.Expect, out)
	return CaseResult{
		Suite:     suiteName,
		Case:      c.Name,
		Query:     c.Query,
		Passed:    len(failures) == 0,
		Failures:  failures,
		Outcome:   out,
		ElapsedMs: out.ElapsedMs,
	}
}

// mergeContext folds session-derived identifiers into the persona
// context without duplicating entries.
func mergeContext(base, session query.UserContext) query.UserContext {
	merged := query.UserContext{UserID: base.UserID}
	if merged.UserID == "" {
		merged.UserID = session.UserID
	}
	merged.KnownPolicies = appendMissing(base.KnownPolicies, session.KnownPolicies)
	merged.KnownClaims = appendMissing(base.KnownClaims, session.KnownClaims)
	return merged
}

func appendMissing(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, v := range extra {
		found := false
		for _, b := range out {
			if b == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

// checkExpect evaluates every declared assertion and reports each
// failure separately.
func checkExpect(e Expect, o *Outcome) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if o.Err != nil {
		fail("Pipeline error: %v", o.Err)
	}
	if e.Intent != "" && o.Intent != e.Intent {
		fail("Intent mismatch: expected '%s', got '%s'", e.Intent, o.Intent)
	}
	if e.MinConfidence > 0 && o.IntentConfidence < e.MinConfidence {
		fail("Intent confidence %.2f below expected %.2f", o.IntentConfidence, e.MinConfidence)
	}
	for k, want := range e.Params {
		got := o.Params[k]
		switch {
		case got == "":
			fail("Missing parameter: '%s'", k)
		case got != want:
			fail("Parameter '%s' mismatch: expected '%s', got '%s'", k, want, got)
		}
	}
	if e.CountMin > 0 {
		if o.Results == nil || o.Results.Count < e.CountMin {
			fail("Result count %d below expected minimum %d", resultCount(o), e.CountMin)
		}
	}
	if e.CountMax > 0 && resultCount(o) > e.CountMax {
		fail("Result count %d exceeds expected maximum %d", resultCount(o), e.CountMax)
	}
	for _, p := range e.PropertiesExist {
		if o.Results == nil || len(o.Results.Properties[p]) == 0 {
			fail("Missing result property: '%s'", p)
		}
	}
	for _, want := range e.Contains {
		if !strings.Contains(o.Answer, want) {
			fail("Answer missing expected content: '%s'", want)
		}
	}
	for _, bad := range e.NotContains {
		if strings.Contains(o.Answer, bad) {
			fail("Answer contains unexpected content: '%s'", bad)
		}
	}
	if e.Automated && !o.Automated {
		fail("Expected automated answer, got escalation: %s", o.Escalated)
	}
	if e.Escalated && o.Automated {
		fail("Expected escalation, but the answer was automated")
	}
	return failures
}

func resultCount(o *Outcome) int {
	if o.Results == nil {
		return 0
	}
	return o.Results.Count
}
