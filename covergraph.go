// Package covergraph is a graph RAG engine for insurance documents:
// policies, claims files, and coverage schedules are parsed into a
// chunked, embedded, entity-linked knowledge graph, and natural-language
// questions are answered by a deterministic pipeline of intent
// classification, graph querying, hybrid retrieval, templated response
// generation, and an automation review that decides whether the answer
// can go out without a human.
package covergraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evanhollis/covergraph/automate"
	"github.com/evanhollis/covergraph/chunker"
	"github.com/evanhollis/covergraph/discover"
	"github.com/evanhollis/covergraph/embed"
	"github.com/evanhollis/covergraph/graph"
	"github.com/evanhollis/covergraph/learn"
	"github.com/evanhollis/covergraph/parser"
	"github.com/evanhollis/covergraph/qa"
	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/respond"
	"github.com/evanhollis/covergraph/retrieval"
	"github.com/evanhollis/covergraph/store"
)

// Engine is the main entry point for the CoverGraph system.
type Engine interface {
	// Ingest parses, chunks, embeds, and graph-builds a document.
	// Returns the document ID. Skips work if the content hash is unchanged.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error)

	// IngestDir discovers supported documents under dir and ingests each.
	IngestDir(ctx context.Context, dir string) ([]IngestResult, error)

	// IngestURL fetches one web page, ingests its readable text as a
	// document, and returns links to downloadable documents found on the
	// page for follow-up ingestion.
	IngestURL(ctx context.Context, pageURL string) (int64, []string, error)

	// Query answers a question through the full pipeline. On escalation the
	// answer is still populated and the error is ErrEscalated; when nothing
	// in the graph or the document base matches, ErrNoResults.
	Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error)

	// Update re-checks a document by hash and re-ingests if changed.
	Update(ctx context.Context, path string) (bool, error)

	// UpdateAll checks every ingested document for changes.
	UpdateAll(ctx context.Context) ([]UpdateResult, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, documentID int64) error

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]Document, error)

	// ExportGraph dumps the entity graph in node/edge form.
	ExportGraph(ctx context.Context) (*graph.Export, error)

	// EvolveSchema runs one schema evolution pass over the instance graph.
	EvolveSchema(ctx context.Context) (*graph.EvolutionResult, error)

	// Feedback records a user rating for a logged answer.
	Feedback(ctx context.Context, queryID string, rating, comment string) error

	// ImprovementCycle runs the self-test suites against a scratch fixture
	// graph, applies automated fixes, adjusts automation thresholds, and
	// learns from feedback and escalations.
	ImprovementCycle(ctx context.Context) (*ImprovementReport, error)

	// SystemReport summarizes storage, schema quality, automation, and
	// usage metrics with recommendations.
	SystemReport(ctx context.Context) (*Report, error)

	// Stats returns row counts for the underlying store.
	Stats(ctx context.Context) (*store.DBStats, error)

	// Store exposes the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer is the result of a query.
type Answer struct {
	QueryID          string   `json:"query_id"`
	Text             string   `json:"text"`
	Intent           string   `json:"intent"`
	IntentConfidence float64  `json:"intent_confidence"`
	Confidence       float64  `json:"confidence"`
	Automated        bool     `json:"automated"`
	EscalationReason string   `json:"escalation_reason,omitempty"`
	Sources          []Source `json:"sources,omitempty"`
	FollowUps        []string `json:"follow_ups,omitempty"`
	Steps            []Step   `json:"steps,omitempty"`
	ElapsedMs        int64    `json:"elapsed_ms"`
}

// Source is a retrieved chunk backing an answer.
type Source struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Heading    string  `json:"heading"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

// Step traces one pipeline stage of a query.
type Step struct {
	Stage     string `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Document is an ingested document.
type Document struct {
	ID          int64             `json:"id"`
	Path        string            `json:"path"`
	Filename    string            `json:"filename"`
	Format      string            `json:"format"`
	ContentHash string            `json:"content_hash"`
	ParseMethod string            `json:"parse_method"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// UpdateResult reports the outcome of a document update check.
type UpdateResult struct {
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Changed    bool   `json:"changed"`
	Error      error  `json:"error,omitempty"`
}

// IngestResult reports one document from a directory ingest.
type IngestResult struct {
	Path       string `json:"path"`
	DocumentID int64  `json:"document_id,omitempty"`
	Error      error  `json:"error,omitempty"`
}

// ImprovementReport is the outcome of one improvement cycle.
type ImprovementReport struct {
	PassRate          float64                    `json:"pass_rate"`
	Total             int                        `json:"total"`
	Failed            int                        `json:"failed"`
	Buckets           map[string]int             `json:"buckets,omitempty"`
	FixesApplied      []string                   `json:"fixes_applied,omitempty"`
	ThresholdChanges  []automate.ThresholdChange `json:"threshold_changes,omitempty"`
	LearnedRules      []string                   `json:"learned_rules,omitempty"`
	ExamplesTaught    int                        `json:"examples_taught"`
	DiscoveredIntents []learn.DiscoveredIntent   `json:"discovered_intents,omitempty"`
	SchemaVersion     int                        `json:"schema_version,omitempty"`
	Recommendations   []string                   `json:"recommendations,omitempty"`
}

// Report is a full system health summary.
type Report struct {
	GeneratedAt     time.Time            `json:"generated_at"`
	Stats           *store.DBStats       `json:"stats"`
	SchemaQuality   *graph.QualityReport `json:"schema_quality,omitempty"`
	Automation      automate.Metrics     `json:"automation"`
	Usage           learn.Metrics        `json:"usage"`
	LastPassRate    float64              `json:"last_pass_rate,omitempty"`
	MeanChunkTokens float64              `json:"mean_chunk_tokens,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReparse bool
	metadata     map[string]string
}

// WithForceReparse forces re-parsing even if the hash hasn't changed.
func WithForceReparse() IngestOption {
	return func(o *ingestOptions) { o.forceReparse = true }
}

// WithMetadata attaches custom metadata to the ingested document.
func WithMetadata(metadata map[string]string) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// QueryOption configures query behavior.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxResults  int
	weightVec   float64
	weightFTS   float64
	weightGraph float64
	userID      string
}

// WithMaxResults sets the maximum number of chunks to retrieve.
func WithMaxResults(n int) QueryOption {
	return func(o *queryOptions) { o.maxResults = n }
}

// WithWeights overrides the retrieval weights for this query.
func WithWeights(vec, fts, graph float64) QueryOption {
	return func(o *queryOptions) {
		o.weightVec = vec
		o.weightFTS = fts
		o.weightGraph = graph
	}
}

// WithUser attaches the query to a user session, so identifiers from
// earlier turns can fill in a missing policy or claim number.
func WithUser(userID string) QueryOption {
	return func(o *queryOptions) { o.userID = userID }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg        Config
	store      *store.Store
	embedder   embed.Embedder
	parsers    *parser.Registry
	chunkr     *chunker.Chunker
	graphB     *graph.Builder
	retriever  *retrieval.Engine
	classifier *query.Classifier
	responder  *respond.Responder
	reviewer   *automate.Reviewer
	tracker    *learn.Tracker

	mu           sync.Mutex
	sessions     map[string]*learn.Session
	lastPassRate float64
}

// New creates a CoverGraph engine with the given configuration.
// Zero-value fields take their defaults before validation.
func New(cfg Config) (Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = embed.DefaultDim
	}
	if cfg.MaxChunkTokens == 0 {
		cfg.MaxChunkTokens = 1024
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dbPath := cfg.resolveDBPath()

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := graph.SeedSchema(context.Background(), s); err != nil {
		s.Close()
		return nil, fmt.Errorf("seeding schema: %w", err)
	}

	embedder := embed.NewLexical(cfg.EmbeddingDim)

	e := &engine{
		cfg:      cfg,
		store:    s,
		embedder: embedder,
		parsers:  parser.NewRegistry(),
		chunkr: chunker.New(chunker.Config{
			MaxTokens: cfg.MaxChunkTokens,
			Overlap:   cfg.ChunkOverlap,
		}),
		graphB: graph.NewBuilder(s, cfg.GraphConcurrency),
		retriever: retrieval.New(s, embedder, retrieval.Config{
			WeightVector: cfg.WeightVector,
			WeightFTS:    cfg.WeightFTS,
			WeightGraph:  cfg.WeightGraph,
		}),
		classifier: query.NewClassifier(),
		responder:  respond.New(),
		reviewer:   automate.NewReviewer(cfg.AutomationThresholds, cfg.AutomationDefault),
		tracker:    learn.NewTracker(),
		sessions:   make(map[string]*learn.Session),
	}
	return e, nil
}

// Ingest processes a document through the full pipeline.
func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error) {
	options := &ingestOptions{}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("hashing file: %w", err)
	}

	if !options.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash {
			return existing.ID, nil // no change
		}
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	filename := filepath.Base(absPath)

	p, err := e.parsers.Get(format)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	slog.Info("ingest: parsing document", "file", filename, "format", format)
	parseStart := time.Now()
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	slog.Info("ingest: parsing complete",
		"file", filename, "method", parsed.Method,
		"sections", len(parsed.Sections), "elapsed", time.Since(parseStart).Round(time.Millisecond))

	var metadataJSON string
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		metadataJSON = string(data)
	}

	docID, err := e.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filename,
		Format:      format,
		ContentHash: hash,
		ParseMethod: parsed.Method,
		Status:      "processing",
		Metadata:    metadataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	chunkStart := time.Now()
	chunks := e.chunkr.Chunk(parsed.Sections)
	slog.Info("ingest: chunking complete",
		"file", filename, "chunks", len(chunks),
		"elapsed", time.Since(chunkStart).Round(time.Millisecond))

	// Re-ingest: drop the document's old chunks, embeddings, and entities.
	if err := e.store.DeleteDocumentData(ctx, docID); err != nil {
		return 0, fmt.Errorf("cleaning old data: %w", err)
	}

	for i := range chunks {
		chunks[i].DocumentID = docID
	}
	chunkIDs, err := e.store.InsertChunks(ctx, chunks)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed")
		return 0, fmt.Errorf("inserting chunks: %w", err)
	}

	embedStart := time.Now()
	if err := e.embedChunks(ctx, chunks, chunkIDs); err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed")
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	slog.Info("ingest: embeddings complete",
		"file", filename, "chunks", len(chunks),
		"elapsed", time.Since(embedStart).Round(time.Millisecond))

	if !e.cfg.SkipGraph {
		graphStart := time.Now()
		if err := e.graphB.Build(ctx, docID, chunks, chunkIDs); err != nil {
			slog.Warn("graph build had errors (non-fatal)", "doc_id", docID, "error", err)
		}
		slog.Info("ingest: graph build complete",
			"file", filename, "elapsed", time.Since(graphStart).Round(time.Millisecond))

		// The domain schema keeps up with what extraction observed.
		if _, err := graph.Evolve(ctx, e.store, e.cfg.EvolveThreshold); err != nil {
			slog.Warn("schema observation failed (non-fatal)", "error", err)
		}

		communities, err := graph.DetectCommunities(ctx, e.store)
		if err != nil {
			slog.Warn("community detection failed (non-fatal)", "error", err)
		} else if len(communities) > 0 {
			if err := graph.SummarizeCommunities(ctx, e.store, communities); err != nil {
				slog.Warn("community summarization failed (non-fatal)", "error", err)
			}
		}
	}

	e.store.UpdateDocumentStatus(ctx, docID, "ready")
	slog.Info("ingest: document ready", "file", filename, "doc_id", docID,
		"total_elapsed", time.Since(parseStart).Round(time.Millisecond))
	return docID, nil
}

// IngestDir walks dir for supported document formats and ingests each.
func (e *engine) IngestDir(ctx context.Context, dir string) ([]IngestResult, error) {
	candidates, err := discover.ScanDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	results := make([]IngestResult, 0, len(candidates))
	for _, c := range candidates {
		id, err := e.Ingest(ctx, c.Path)
		results = append(results, IngestResult{Path: c.Path, DocumentID: id, Error: err})
		if err != nil {
			slog.Warn("ingest: document failed", "path", c.Path, "error", err)
		}
	}
	return results, nil
}

// IngestURL fetches a page, writes its readable text next to the
// database, and runs it through the normal ingest pipeline. The source
// URL and page title travel in the document metadata.
func (e *engine) IngestURL(ctx context.Context, pageURL string) (int64, []string, error) {
	page, err := discover.FetchURL(ctx, pageURL)
	if err != nil {
		return 0, nil, fmt.Errorf("ingest url: %w", err)
	}
	if page.Text == "" {
		return 0, nil, fmt.Errorf("%w: no readable text at %s", ErrParsingFailed, pageURL)
	}

	dir := filepath.Join(filepath.Dir(e.cfg.resolveDBPath()), "fetched")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, nil, fmt.Errorf("ingest url: %w", err)
	}
	path := filepath.Join(dir, urlSlug(pageURL)+".txt")
	body := page.Text
	if page.Title != "" {
		body = page.Title + "\n\n" + body
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return 0, nil, fmt.Errorf("ingest url: %w", err)
	}

	docID, err := e.Ingest(ctx, path, WithMetadata(map[string]string{
		"source_url": page.URL,
		"title":      page.Title,
	}))
	if err != nil {
		return 0, nil, err
	}
	return docID, page.DocumentURLs, nil
}

// urlSlug flattens a URL into a filename-safe slug.
func urlSlug(pageURL string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(pageURL, "https://"), "http://")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		s = "page"
	}
	return s
}

// Query answers a question: classify, extract, graph-query, retrieve,
// render, validate, and decide automation.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error) {
	options := &queryOptions{
		maxResults:  e.cfg.MaxResults,
		weightVec:   e.cfg.WeightVector,
		weightFTS:   e.cfg.WeightFTS,
		weightGraph: e.cfg.WeightGraph,
	}
	for _, o := range opts {
		o(options)
	}
	if options.maxResults <= 0 {
		options.maxResults = 10
	}

	start := time.Now()
	answer := &Answer{QueryID: uuid.NewString()}
	step := stepTracer(answer)

	uc := e.sessionContext(options.userID)

	cls := e.classifier.Classify(question)
	answer.Intent = string(cls.Intent)
	answer.IntentConfidence = cls.Confidence
	step("classify", fmt.Sprintf("%s (%.2f, %s)", cls.Intent, cls.Confidence, cls.Method))

	params := query.Extract(question, cls.Intent, uc)
	step("extract", paramSummary(params))

	var results *query.Results
	var execErr error
	if cls.Intent != query.IntentUnknown {
		results, execErr = query.Execute(ctx, e.store, query.Build(cls.Intent, params))
		if execErr != nil {
			slog.Warn("query: graph execution failed", "error", execErr)
		}
	}
	step("graph", graphSummary(results, execErr))

	chunks := e.retrieveSupport(ctx, question, options)
	step("retrieve", fmt.Sprintf("%d chunks", len(chunks)))

	rendered := e.responder.Render(respond.Input{
		Query:   question,
		Intent:  cls.Intent,
		Params:  params,
		Results: results,
		Chunks:  chunks,
	})
	if rendered.NoResult && cls.Intent == query.IntentDefinitionInquiry {
		rendered = e.lookupDefinition(ctx, question, params, chunks, rendered)
	}
	step("respond", rendered.Template)

	decision := e.reviewer.Decide(automate.Candidate{
		Query:      question,
		Intent:     cls.Intent,
		Params:     params,
		User:       uc,
		Answer:     rendered.Text,
		Confidence: rendered.Confidence,
		Failed:     execErr != nil,
		NoResult:   rendered.NoResult,
	}, e.reprocess(ctx, question))
	step("automate", decision.Reason)

	answer.Text = decision.Answer
	answer.Confidence = decision.Confidence
	answer.Automated = decision.Automated
	answer.EscalationReason = decision.Reason
	answer.FollowUps = rendered.FollowUps
	answer.ElapsedMs = time.Since(start).Milliseconds()
	answerWords := significantWords(answer.Text)
	for _, c := range chunks {
		content := extractSnippet(c.Content, answerWords)
		if content == "" {
			content = c.Content
		}
		answer.Sources = append(answer.Sources, Source{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Content:    content,
			Heading:    c.Heading,
			PageNumber: c.PageNumber,
			Score:      c.Score,
		})
	}

	e.finishQuery(ctx, question, cls, params, answer, options.userID)

	switch {
	case decision.Automated:
		return answer, nil
	case rendered.NoResult && decision.Handled == "":
		return answer, ErrNoResults
	case decision.Handled == "" && strings.HasPrefix(decision.Reason, "Confidence"):
		return answer, fmt.Errorf("%w: %s", ErrLowConfidence, decision.Reason)
	default:
		return answer, ErrEscalated
	}
}

// finishQuery logs the audit row, records metrics, stores escalations,
// and appends the turn to the user's session.
func (e *engine) finishQuery(ctx context.Context, question string, cls query.Classification, params query.Params, a *Answer, userID string) {
	if err := e.store.LogQuery(ctx, store.QueryLog{
		QueryID:         a.QueryID,
		Query:           question,
		Intent:          a.Intent,
		Answer:          a.Text,
		Confidence:      a.Confidence,
		Automated:       a.Automated,
		Sources:         a.Sources,
		RetrievalMethod: "graph+hybrid",
		ElapsedMs:       a.ElapsedMs,
	}); err != nil {
		slog.Warn("query: audit log failed", "error", err)
	}

	if !a.Automated {
		if _, err := e.store.InsertEscalation(ctx, store.Escalation{
			QueryID:    a.QueryID,
			Query:      question,
			Intent:     a.Intent,
			Reason:     a.EscalationReason,
			Confidence: a.Confidence,
		}); err != nil {
			slog.Warn("query: escalation log failed", "error", err)
		}
	}

	complex := len(params.CoverageTypes) > 1 ||
		(params.PolicyNumber != "" && params.ClaimNumber != "")
	e.tracker.Record(cls.Intent, time.Duration(a.ElapsedMs)*time.Millisecond, a.Automated, complex)

	if userID != "" {
		e.session(userID).Add(learn.Turn{
			Query:  question,
			Intent: cls.Intent,
			Params: params.Map(),
			Answer: a.Text,
		})
	}
}

// retrieveSupport runs hybrid retrieval for answer grounding. Retrieval
// failures degrade to a graph-only answer rather than failing the query.
func (e *engine) retrieveSupport(ctx context.Context, question string, options *queryOptions) []store.RetrievalResult {
	chunks, _, err := e.retriever.Search(ctx, question, retrieval.SearchOptions{
		MaxResults:  options.maxResults,
		WeightVec:   options.weightVec,
		WeightFTS:   options.weightFTS,
		WeightGraph: options.weightGraph,
	})
	if err != nil {
		slog.Warn("query: retrieval failed", "error", err)
		return nil
	}
	return chunks
}

// lookupDefinition retries a missed glossary lookup with fuzzy term
// matching over the stored definition entities.
func (e *engine) lookupDefinition(ctx context.Context, question string, params query.Params, chunks []store.RetrievalResult, miss *respond.Output) *respond.Output {
	defs, err := e.store.EntitiesByType(ctx, "definition")
	if err != nil || len(defs) == 0 {
		return miss
	}
	match, ok := respond.FindDefinition(params.Term, defs)
	if !ok {
		return miss
	}
	return e.responder.Render(respond.Input{
		Query:  question,
		Intent: query.IntentDefinitionInquiry,
		Params: params,
		Chunks: chunks,
		Results: &query.Results{
			Count: 1,
			Properties: map[string][]string{
				"d.term":    {match.Term},
				"d.meaning": {match.Meaning},
			},
		},
	})
}

// reprocess lets the exception handlers re-run the pipeline with
// amended parameters or a remapped intent.
func (e *engine) reprocess(ctx context.Context, question string) automate.ReprocessFunc {
	return func(q string, params query.Params) (string, float64, error) {
		cls := e.classifier.Classify(q)
		intent := cls.Intent
		if intent == query.IntentUnknown {
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
		results, err := query.Execute(ctx, e.store, query.Build(intent, params))
		if err != nil {
			return "", 0, err
		}
		rendered := e.responder.Render(respond.Input{
			Query: q, Intent: intent, Params: params, Results: results,
		})
		if rendered.NoResult {
			return "", 0, nil
		}
		return rendered.Text, rendered.Confidence, nil
	}
}

// Update checks if a document has changed and re-ingests if needed.
func (e *engine) Update(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	doc, err := e.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrDocumentNotFound, absPath)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return false, fmt.Errorf("hashing file: %w", err)
	}
	if hash == doc.ContentHash {
		return false, nil
	}

	if _, err := e.Ingest(ctx, absPath, WithForceReparse()); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAll checks all documents for changes.
func (e *engine) UpdateAll(ctx context.Context) ([]UpdateResult, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(docs))
	for _, doc := range docs {
		changed, err := e.Update(ctx, doc.Path)
		results = append(results, UpdateResult{
			DocumentID: doc.ID,
			Path:       doc.Path,
			Changed:    changed,
			Error:      err,
		})
	}
	return results, nil
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	return e.store.DeleteDocument(ctx, documentID)
}

// ListDocuments returns all ingested documents.
func (e *engine) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = Document{
			ID:          d.ID,
			Path:        d.Path,
			Filename:    d.Filename,
			Format:      d.Format,
			ContentHash: d.ContentHash,
			ParseMethod: d.ParseMethod,
			Status:      d.Status,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		}
		if d.Metadata != "" {
			_ = json.Unmarshal([]byte(d.Metadata), &result[i].Metadata)
		}
	}
	return result, nil
}

// ExportGraph dumps the entity graph.
func (e *engine) ExportGraph(ctx context.Context) (*graph.Export, error) {
	return graph.ExportGraph(ctx, e.store)
}

// EvolveSchema runs one evolution pass at the configured threshold.
func (e *engine) EvolveSchema(ctx context.Context) (*graph.EvolutionResult, error) {
	return graph.Evolve(ctx, e.store, e.cfg.EvolveThreshold)
}

// Feedback records a user rating for a logged answer.
func (e *engine) Feedback(ctx context.Context, queryID, rating, comment string) error {
	_, err := e.store.InsertFeedback(ctx, store.Feedback{
		QueryID: queryID,
		Rating:  rating,
		Comment: comment,
	})
	return err
}

// ImprovementCycle runs the QA suites against a scratch fixture store,
// diagnoses failures, applies fixes to the live pipeline components,
// adjusts automation thresholds, and learns from feedback, escalations,
// and unclassified queries.
func (e *engine) ImprovementCycle(ctx context.Context) (*ImprovementReport, error) {
	scratch, cleanup, err := scratchStore(e.cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("improvement cycle: %w", err)
	}
	defer cleanup()

	if _, err := qa.BuildSyntheticGraph(ctx, scratch, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("improvement cycle: seeding fixture: %w", err)
	}

	// The runner shares the live classifier, responder, and reviewer, so
	// fixes land on the components answering real queries.
	runner := &qa.Runner{
		Store:      scratch,
		Classifier: e.classifier,
		Responder:  e.responder,
		Reviewer:   e.reviewer,
	}
	qaReport := runner.RunAll(ctx)
	diagnosis := qa.Diagnose(qaReport)
	fixes := qa.ApplyFixes(ctx, runner, qaReport, diagnosis)

	rep := &ImprovementReport{
		PassRate:        qaReport.PassRate,
		Total:           qaReport.Total,
		Failed:          qaReport.Failed,
		Buckets:         diagnosis.Buckets,
		FixesApplied:    fixes,
		Recommendations: diagnosis.Recommendations,
	}

	feedback, ferr := e.store.ListFeedback(ctx, 200)
	records, rerr := e.store.RecentQueries(ctx, 200)

	// Rated answers score the automation decisions they came from, so
	// the threshold adjustment below works from real outcomes.
	if ferr == nil && rerr == nil {
		e.scoreOutcomes(feedback, records)
	}
	rep.ThresholdChanges = e.reviewer.AdjustThresholds()

	if escalations, err := e.store.ListEscalations(ctx, 100); err == nil {
		rep.LearnedRules = e.reviewer.LearnFromEscalations(escalations)
	}

	if ferr == nil && rerr == nil {
		rep.ExamplesTaught = learn.UpdateFromFeedback(e.classifier, feedback, records)
	}

	if rerr == nil {
		var unknown []string
		for _, r := range records {
			if r.Intent == string(query.IntentUnknown) {
				unknown = append(unknown, r.Query)
			}
		}
		rep.DiscoveredIntents = learn.DiscoverIntents(unknown, 6)
	}

	if evo, err := graph.Evolve(ctx, e.store, e.cfg.EvolveThreshold); err != nil {
		slog.Warn("improvement cycle: schema evolution failed", "error", err)
	} else {
		rep.SchemaVersion = evo.Version
	}

	e.mu.Lock()
	e.lastPassRate = qaReport.PassRate
	e.mu.Unlock()

	slog.Info("improvement cycle complete",
		"pass_rate", qaReport.PassRate, "fixes", len(fixes),
		"threshold_changes", len(rep.ThresholdChanges))
	return rep, nil
}

// scoreOutcomes joins feedback rows to their logged queries and records
// each rated automated answer with the reviewer.
func (e *engine) scoreOutcomes(feedback []store.Feedback, records []store.QueryRecord) {
	byID := make(map[string]store.QueryRecord, len(records))
	for _, r := range records {
		byID[r.QueryID] = r
	}
	for _, f := range feedback {
		rec, ok := byID[f.QueryID]
		if !ok || !rec.Automated || rec.Intent == "" {
			continue
		}
		e.reviewer.RecordOutcome(query.Intent(rec.Intent), learn.PositiveRating(f.Rating))
	}
}

// SystemReport summarizes storage, schema, automation, and usage state.
func (e *engine) SystemReport(ctx context.Context) (*Report, error) {
	stats, err := e.store.DBStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("system report: %w", err)
	}

	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
		Automation:  e.reviewer.Snapshot(),
		Usage:       e.tracker.Snapshot(),
	}
	e.mu.Lock()
	rep.LastPassRate = e.lastPassRate
	e.mu.Unlock()

	if q, err := graph.SchemaQuality(ctx, e.store); err == nil {
		rep.SchemaQuality = q
	}

	// Profile the corpus from a random sample rather than a full scan.
	if sample, err := e.store.SampleChunks(ctx, 200); err == nil && len(sample) > 0 {
		var tokens int
		for _, c := range sample {
			tokens += c.TokenCount
		}
		rep.MeanChunkTokens = float64(tokens) / float64(len(sample))
	}

	if stats.Documents < 10 {
		rep.Recommendations = append(rep.Recommendations,
			fmt.Sprintf("Only %d documents ingested; answers improve with more source material.", stats.Documents))
	}
	if rep.SchemaQuality != nil && rep.SchemaQuality.Coverage < 0.7 {
		rep.Recommendations = append(rep.Recommendations,
			"Schema coverage is below 70%: run schema evolution to absorb observed entity types.")
	}
	if rep.LastPassRate > 0 && rep.LastPassRate < 0.8 {
		rep.Recommendations = append(rep.Recommendations,
			"The last QA run passed under 80% of cases: review the failure diagnosis before raising automation.")
	}
	if rep.Automation.Decisions > 10 && rep.Automation.AutomationRate < 0.7 {
		rep.Recommendations = append(rep.Recommendations,
			"Under 70% of answers go out automatically: inspect escalation reasons for recurring causes.")
	}
	return rep, nil
}

// Stats returns row counts for the underlying store.
func (e *engine) Stats(ctx context.Context) (*store.DBStats, error) {
	return e.store.DBStats(ctx)
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

// session returns the rolling session for a user, creating it on first use.
func (e *engine) session(userID string) *learn.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	if !ok {
		s = learn.NewSession(userID)
		e.sessions[userID] = s
	}
	return s
}

func (e *engine) sessionContext(userID string) query.UserContext {
	if userID == "" {
		return query.UserContext{}
	}
	return e.session(userID).Context()
}

// embedChunks generates and stores embeddings in batches.
func (e *engine) embedChunks(ctx context.Context, chunks []store.Chunk, chunkIDs []int64) error {
	const batchSize = 32
	var failed int

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			prefix := ""
			if chunks[j].Heading != "" {
				prefix = chunks[j].Heading + ": "
			}
			texts[j-i] = prefix + chunks[j].Content
		}

		embeddings, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for j, emb := range embeddings {
			if err := e.store.InsertEmbedding(ctx, chunkIDs[i+j], emb); err != nil {
				slog.Warn("storing embedding failed", "chunk_id", chunkIDs[i+j], "error", err)
				failed++
			}
		}
	}

	if len(chunks) > 0 && failed == len(chunks) {
		return fmt.Errorf("all %d chunks failed embedding", len(chunks))
	}
	if failed > 0 {
		slog.Warn("some embeddings failed", "failed", failed, "total", len(chunks))
	}
	return nil
}

// stepTracer appends pipeline steps with per-stage timing.
func stepTracer(a *Answer) func(stage, detail string) {
	last := time.Now()
	return func(stage, detail string) {
		now := time.Now()
		a.Steps = append(a.Steps, Step{
			Stage:     stage,
			Detail:    detail,
			ElapsedMs: now.Sub(last).Milliseconds(),
		})
		last = now
	}
}

func paramSummary(p query.Params) string {
	m := p.Map()
	if len(m) == 0 {
		return "no parameters"
	}
	parts := make([]string, 0, len(m))
	for _, k := range []string{"policy_number", "claim_number", "policy_type", "coverage_types", "term", "user_id"} {
		if v, ok := m[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d parameters", len(m))
	}
	return strings.Join(parts, " ")
}

func graphSummary(res *query.Results, err error) string {
	switch {
	case err != nil:
		return "error: " + err.Error()
	case res == nil:
		return "skipped"
	case res.Procedural:
		return "procedural"
	default:
		return fmt.Sprintf("%d matches", res.Count)
	}
}

// scratchStore opens a throwaway store for fixture runs.
func scratchStore(dim int) (*store.Store, func(), error) {
	dir, err := os.MkdirTemp("", "covergraph-qa-*")
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(filepath.Join(dir, "qa.db"), dim)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	cleanup := func() {
		s.Close()
		os.RemoveAll(dir)
	}
	return s, cleanup, nil
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
