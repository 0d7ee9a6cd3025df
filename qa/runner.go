package qa

import (
	"context"
	"time"

	"github.com/evanhollis/covergraph/automate"
	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/respond"
	"github.com/evanhollis/covergraph/store"
)

// Runner drives the query pipeline (classify, extract, build, execute,
// render, review) against a store, without retrieval: the suites test
// graph semantics, not document chunks.
type Runner struct {
	Store      *store.Store
	Classifier *query.Classifier
	Responder  *respond.Responder
	Reviewer   *automate.Reviewer
}

// NewRunner wires a Runner with fresh pipeline components over s.
func NewRunner(s *store.Store) *Runner {
	return &Runner{
		Store:      s,
		Classifier: query.NewClassifier(),
		Responder:  respond.New(),
		Reviewer:   automate.NewReviewer(nil, 0),
	}
}

// Outcome is one pipeline run, with every stage's output exposed for
// assertions.
type Outcome struct {
	Query            string            `json:"query"`
	Intent           query.Intent      `json:"intent"`
	IntentConfidence float64           `json:"intent_confidence"`
	Params           map[string]string `json:"params,omitempty"`
	Results          *query.Results    `json:"results,omitempty"`
	Answer           string            `json:"answer"`
	Confidence       float64           `json:"confidence"`
	Automated        bool              `json:"automated"`
	Escalated        string            `json:"escalated,omitempty"`
	ElapsedMs        int64             `json:"elapsed_ms"`
	Err              error             `json:"-"`
}

// Ask runs one question through the pipeline.
func (r *Runner) Ask(ctx context.Context, question string, uc query.UserContext) *Outcome {
	start := time.Now()
	out := &Outcome{Query: question}

	cls := r.Classifier.Classify(question)
	out.Intent = cls.Intent
	out.IntentConfidence = cls.Confidence

	params := query.Extract(question, cls.Intent, uc)
	out.Params = params.Map()

	var results *query.Results
	var execErr error
	if cls.Intent != query.IntentUnknown {
		gq := query.Build(cls.Intent, params)
		results, execErr = query.Execute(ctx, r.Store, gq)
		if execErr != nil {
			out.Err = execErr
		}
	}
	out.Results = results

	rendered := r.Responder.Render(respond.Input{
		Query:   question,
		Intent:  cls.Intent,
		Params:  params,
		Results: results,
	})
	if rendered.NoResult && cls.Intent == query.IntentDefinitionInquiry {
		rendered = r.lookupDefinition(ctx, question, params, rendered)
	}

	decision := r.Reviewer.Decide(automate.Candidate{
		Query:      question,
		Intent:     cls.Intent,
		Params:     params,
		User:       uc,
		Answer:     rendered.Text,
		Confidence: rendered.Confidence,
		Failed:     execErr != nil,
		NoResult:   rendered.NoResult,
	}, r.reprocess(ctx, question))

	out.Answer = decision.Answer
	out.Confidence = decision.Confidence
	out.Automated = decision.Automated
	out.Escalated = decision.Reason
	out.ElapsedMs = time.Since(start).Milliseconds()
	return out
}

// lookupDefinition retries a missed glossary lookup with fuzzy term
// matching against the stored definition entities.
func (r *Runner) lookupDefinition(ctx context.Context, question string, params query.Params, miss *respond.Output) *respond.Output {
	defs, err := r.Store.EntitiesByType(ctx, "definition")
	if err != nil || len(defs) == 0 {
		return miss
	}
	match, ok := respond.FindDefinition(params.Term, defs)
	if !ok {
		return miss
	}
	return r.Responder.Render(respond.Input{
		Query:  question,
		Intent: query.IntentDefinitionInquiry,
		Params: params,
		Results: &query.Results{
			Count: 1,
			Properties: map[string][]string{
				"d.term":    {match.Term},
				"d.meaning": {match.Meaning},
			},
		},
	})
}

// reprocess lets exception handlers re-run the pipeline with amended
// parameters or a remapped intent.
func (r *Runner) reprocess(ctx context.Context, question string) automate.ReprocessFunc {
	return func(q string, params query.Params) (string, float64, error) {
		cls := r.Classifier.Classify(q)
		intent := cls.Intent
		if intent == query.IntentUnknown {
			// Handler-driven remap: keyword guess first, then derive
			// the intent from the amended parameters.
			switch remapped, ok := automate.RemapIntent(q); {
			case ok:
				intent = remapped
			case params.ClaimNumber != "":
				intent = query.IntentClaimStatus
			case params.PolicyNumber != "":
				intent = query.IntentPolicyDetails
			default:
				return "", 0, nil
			}
		}
		results, err := query.Execute(ctx, r.Store, query.Build(intent, params))
		if err != nil {
			return "", 0, err
		}
		rendered := r.Responder.Render(respond.Input{
			Query: q, Intent: intent, Params: params, Results: results,
		})
		if rendered.NoResult {
			return "", 0, nil
		}
		return rendered.Text, rendered.Confidence, nil
	}
}
