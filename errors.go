package covergraph

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("covergraph: document not found")

	// ErrDocumentExists is returned when trying to ingest a duplicate path.
	ErrDocumentExists = errors.New("covergraph: document already exists")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("covergraph: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("covergraph: parsing failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("covergraph: embedding generation failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("covergraph: store is closed")

	// ErrNoResults is returned when neither the graph nor retrieval yields
	// anything to answer from.
	ErrNoResults = errors.New("covergraph: no results found")

	// ErrLowConfidence is returned when the answer confidence is below threshold.
	ErrLowConfidence = errors.New("covergraph: answer confidence below threshold")

	// ErrUnknownIntent is returned when a question cannot be classified and
	// clarification handling could not recover it.
	ErrUnknownIntent = errors.New("covergraph: could not determine query intent")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("covergraph: invalid configuration")

	// ErrSchemaConflict is returned when applying schema evolution proposals
	// against a schema version that changed underneath.
	ErrSchemaConflict = errors.New("covergraph: schema version conflict")

	// ErrEscalated is returned when automation routed the query to human
	// review instead of answering autonomously. The answer is still populated
	// so callers can display it alongside the escalation notice.
	ErrEscalated = errors.New("covergraph: query escalated for human review")
)
