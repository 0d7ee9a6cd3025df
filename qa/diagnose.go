package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evanhollis/covergraph/query"
)

// Failure buckets used by diagnosis and fix selection.
const (
	BucketIntent     = "intent"
	BucketParameter  = "parameter"
	BucketGraph      = "graph"
	BucketResponse   = "response"
	BucketCompliance = "compliance"
	BucketError      = "error"
)

// Diagnosis groups a report's failures by pipeline stage and suggests
// remediation.
type Diagnosis struct {
	Buckets         map[string]int `json:"buckets"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Diagnose classifies every failure in the report and derives
// recommendations for buckets with repeated failures.
func Diagnose(rep *Report) *Diagnosis {
	d := &Diagnosis{Buckets: make(map[string]int)}

	for _, c := range rep.Failures() {
		d.Buckets[classifyFailure(c)]++
	}

	if d.Buckets[BucketIntent] > 2 {
		d.Recommendations = append(d.Recommendations,
			"Repeated intent misclassification: teach the classifier more example phrasings for the failing intents.")
	}
	if d.Buckets[BucketParameter] > 2 {
		d.Recommendations = append(d.Recommendations,
			"Repeated parameter extraction misses: review the identifier patterns against the failing query phrasings.")
	}
	if d.Buckets[BucketGraph] > 2 {
		d.Recommendations = append(d.Recommendations,
			"Repeated empty graph results: the entity graph may be missing nodes or relationships for the queried range.")
	}
	if d.Buckets[BucketResponse] > 2 {
		d.Recommendations = append(d.Recommendations,
			"Repeated response mismatches: add answer templates covering the failing result shapes.")
	}
	if d.Buckets[BucketCompliance] > 0 {
		d.Recommendations = append(d.Recommendations,
			"Compliance failures detected: tighten the review rules before raising automation thresholds.")
	}
	if rep.Total > 0 && float64(rep.Failed)/float64(rep.Total) > 0.3 {
		d.Recommendations = append(d.Recommendations,
			"Over 30% of cases failed: re-run after fixes rather than adjusting thresholds on this data.")
	}
	return d
}

// classifyFailure maps a failed case to its pipeline stage by the shape
// of its first failure message.
func classifyFailure(c CaseResult) string {
	if c.Suite == SuiteCompliance {
		return BucketCompliance
	}
	if len(c.Failures) == 0 {
		return BucketResponse
	}
	msg := c.Failures[0]
	switch {
	case strings.HasPrefix(msg, "Pipeline error"):
		return BucketError
	case strings.HasPrefix(msg, "Intent"):
		return BucketIntent
	case strings.HasPrefix(msg, "Missing parameter") || strings.HasPrefix(msg, "Parameter"):
		return BucketParameter
	case strings.HasPrefix(msg, "Result count") || strings.HasPrefix(msg, "Missing result property"):
		return BucketGraph
	default:
		return BucketResponse
	}
}

// ApplyFixes applies the automated remediations a diagnosis supports:
// confidently-classified passing queries become classifier examples,
// graph failures grow the synthetic graph, and compliance failures add
// a review rule. Returns a description of each fix applied.
func ApplyFixes(ctx context.Context, r *Runner, rep *Report, d *Diagnosis) []string {
	var applied []string

	// Passing, confidently classified cases are safe training data:
	// they reinforce the phrasings that already route correctly.
	taught := 0
	for _, s := range rep.Suites {
		for _, c := range s.Results {
			if !c.Passed || c.Outcome == nil {
				continue
			}
			o := c.Outcome
			if o.Intent != query.IntentUnknown && o.IntentConfidence >= 0.9 {
				r.Classifier.AddExample(o.Intent, o.Query)
				taught++
			}
		}
	}
	if taught > 0 {
		applied = append(applied, fmt.Sprintf("taught the classifier %d high-confidence phrasings", taught))
	}

	if d.Buckets[BucketGraph] > 2 {
		added, err := ExtendSyntheticGraph(ctx, r.Store, 1, 5)
		if err != nil {
			slog.Warn("qa: extending synthetic graph failed", "error", err)
		} else {
			applied = append(applied, fmt.Sprintf("extended the synthetic graph with %d policies", len(added)))
		}
	}

	if d.Buckets[BucketCompliance] > 0 {
		r.Reviewer.AddReviewRule("cancellation")
		applied = append(applied, "added a cancellation review rule")
	}

	for _, fix := range applied {
		slog.Info("qa: applied fix", "fix", fix)
	}
	return applied
}

// Finding is one performance observation with a severity.
type Finding struct {
	Severity string `json:"severity"` // low, medium, high, critical
	Metric   string `json:"metric"`
	Detail   string `json:"detail"`
}

// Performance summarizes a report against service expectations and,
// when a previous report is given, against the trend.
type Performance struct {
	PassRate     float64   `json:"pass_rate"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	Errors       int       `json:"errors"`
	Findings     []Finding `json:"findings,omitempty"`
	Trend        string    `json:"trend,omitempty"` // improving, stable, degrading
}

// AnalyzePerformance grades a harness run. prev may be nil.
func AnalyzePerformance(rep *Report, prev *Report) *Performance {
	p := &Performance{
		PassRate:     rep.PassRate,
		AvgLatencyMs: rep.AvgLatencyMs,
		Errors:       rep.Errors,
	}

	if rep.PassRate < 0.8 {
		p.Findings = append(p.Findings, Finding{
			Severity: "high", Metric: "pass_rate",
			Detail: fmt.Sprintf("pass rate %.0f%% is below the 80%% target", rep.PassRate*100),
		})
	}
	if rep.AvgLatencyMs > 500 {
		p.Findings = append(p.Findings, Finding{
			Severity: "medium", Metric: "latency",
			Detail: fmt.Sprintf("average case latency %.0fms exceeds 500ms", rep.AvgLatencyMs),
		})
	}
	if rep.Errors > 10 {
		p.Findings = append(p.Findings, Finding{
			Severity: "high", Metric: "errors",
			Detail: fmt.Sprintf("%d pipeline errors during the run", rep.Errors),
		})
	}
	if rep.ComplianceFailures > 0 {
		p.Findings = append(p.Findings, Finding{
			Severity: "critical", Metric: "compliance",
			Detail: fmt.Sprintf("%d compliance case(s) failed", rep.ComplianceFailures),
		})
	}

	if prev != nil {
		switch delta := rep.PassRate - prev.PassRate; {
		case delta > 0.05:
			p.Trend = "improving"
		case delta < -0.05:
			p.Trend = "degrading"
			p.Findings = append(p.Findings, Finding{
				Severity: "high", Metric: "trend",
				Detail: fmt.Sprintf("pass rate dropped from %.0f%% to %.0f%%", prev.PassRate*100, rep.PassRate*100),
			})
		default:
			p.Trend = "stable"
		}
	}
	return p
}
