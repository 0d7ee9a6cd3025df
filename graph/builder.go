package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/evanhollis/covergraph/extract"
	"github.com/evanhollis/covergraph/store"
)

// defaultConcurrency is the default semaphore size for parallel chunk
// processing. SQLite serializes writes, so extra workers only queue on
// the lock.
const defaultConcurrency = 8

// minChunkTokens skips prose chunks below this threshold (headers, TOC
// lines, page furniture). Declarations and definition chunks are kept
// regardless: a one-line deductible entry is a fact worth a node.
const minChunkTokens = 30

// perChunkTimeout caps how long a single chunk's extraction and writes
// may take, so one lock stall cannot hang the whole build.
const perChunkTimeout = 30 * time.Second

// keepShortTypes are chunk types processed even below minChunkTokens.
var keepShortTypes = map[string]bool{
	"table":        true,
	"declarations": true,
	"definition":   true,
}

// estimateTokens approximates token count using a word-based heuristic.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// tokenCount prefers the count stamped by the chunker, falling back to
// an estimate for chunks that arrived without one.
func tokenCount(c store.Chunk) int {
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return estimateTokens(c.Content)
}

// chunkKind reads the canonical policy section the chunker stamped into
// the chunk metadata, "" when the chunk carries none.
func chunkKind(c store.Chunk) string {
	if c.Metadata == "" || c.Metadata == "{}" {
		return ""
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(c.Metadata), &meta); err != nil {
		return ""
	}
	return meta["policy_section"]
}

// Builder constructs the knowledge graph from document chunks.
type Builder struct {
	store       *store.Store
	concurrency int
}

// NewBuilder creates a new graph builder.
func NewBuilder(s *store.Store, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{
		store:       s,
		concurrency: concurrency,
	}
}

// Build extracts entities and relationships from chunks and stores them.
// chunks and chunkIDs correspond by index. Extraction is deterministic,
// so rebuilding the same document converges on the same graph.
func (b *Builder) Build(ctx context.Context, docID int64, chunks []store.Chunk, chunkIDs []int64) error {
	if len(chunks) != len(chunkIDs) {
		return fmt.Errorf("graph.Build: chunks and chunkIDs length mismatch (%d vs %d)", len(chunks), len(chunkIDs))
	}

	// Filter out trivial chunks that carry no extractable facts.
	type indexedChunk struct {
		chunk   store.Chunk
		chunkID int64
	}
	var eligible []indexedChunk
	for i := range chunks {
		if tokenCount(chunks[i]) < minChunkTokens && !keepShortTypes[chunks[i].ChunkType] {
			slog.Debug("graph: skipping trivial chunk", "chunk_id", chunkIDs[i],
				"tokens", tokenCount(chunks[i]))
			continue
		}
		eligible = append(eligible, indexedChunk{chunks[i], chunkIDs[i]})
	}

	if len(eligible) == 0 {
		return nil
	}

	slog.Info("graph: processing chunks", "document_id", docID,
		"total", len(chunks), "eligible", len(eligible),
		"skipped", len(chunks)-len(eligible), "concurrency", b.concurrency)

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		sem        = make(chan struct{}, b.concurrency)
		errs       []string
		completed  int
		buildStart = time.Now()
	)

	total := len(eligible)

	for _, ic := range eligible {
		wg.Add(1)
		go func(chunk store.Chunk, chunkID int64) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, fmt.Sprintf("chunk %d: %v", chunkID, ctx.Err()))
				mu.Unlock()
				return
			}

			chunkCtx, cancel := context.WithTimeout(ctx, perChunkTimeout)
			defer cancel()

			chunkStart := time.Now()
			if err := b.processChunk(chunkCtx, chunk, chunkID); err != nil {
				slog.Warn("graph: chunk failed",
					"chunk_id", chunkID, "error", err,
					"elapsed", time.Since(chunkStart).Round(time.Millisecond))
				mu.Lock()
				errs = append(errs, fmt.Sprintf("chunk %d: %v", chunkID, err))
				completed++
				mu.Unlock()
			} else {
				mu.Lock()
				completed++
				n := completed
				mu.Unlock()
				slog.Debug("graph: chunk processed",
					"progress", fmt.Sprintf("%d/%d", n, total),
					"chunk_id", chunkID,
					"elapsed", time.Since(chunkStart).Round(time.Millisecond),
					"total_elapsed", time.Since(buildStart).Round(time.Millisecond))
			}
		}(ic.chunk, ic.chunkID)
	}

	wg.Wait()

	if len(errs) == len(eligible) && len(eligible) > 0 {
		return fmt.Errorf("graph.Build: all %d eligible chunks failed; first error: %s", len(eligible), errs[0])
	}
	if len(errs) > 0 {
		slog.Warn("graph: build completed with failures",
			"succeeded", len(eligible)-len(errs), "failed", len(errs), "total", len(eligible))
	}
	return nil
}

// processChunk runs rule extraction on a single chunk and persists the
// mentions and relations it yields.
func (b *Builder) processChunk(ctx context.Context, chunk store.Chunk, chunkID int64) error {
	res := extract.FromChunk(chunk.Content, extract.Context{
		ChunkType: chunk.ChunkType,
		Heading:   chunk.Heading,
		Kind:      chunkKind(chunk),
	})
	if len(res.Mentions) == 0 {
		return nil
	}

	// Entity names are stored lowercased so lookups from the retrieval
	// and query layers stay exact-match.
	entityIDs := make(map[string]int64, len(res.Mentions))
	for _, m := range res.Mentions {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			continue
		}

		var metadata string
		if len(m.Attributes) > 0 {
			if raw, err := json.Marshal(m.Attributes); err == nil {
				metadata = string(raw)
			}
		}

		// Upsert + link in a single transaction to avoid FK race conditions.
		id, err := b.store.UpsertEntityAndLink(ctx, store.Entity{
			Name:        name,
			EntityType:  m.Type,
			Description: m.Description,
			Metadata:    metadata,
		}, chunkID)
		if err != nil {
			slog.Warn("graph: entity upsert+link failed, skipping",
				"entity", name, "chunk", chunkID, "error", err)
			continue
		}
		entityIDs[m.Key()] = id
	}

	for _, r := range res.Relations {
		srcID, okSrc := entityIDs[r.SourceKey]
		tgtID, okTgt := entityIDs[r.TargetKey]
		if !okSrc || !okTgt {
			// An endpoint failed to persist above; drop the relation
			// rather than point at a missing row.
			continue
		}

		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}

		cid := chunkID
		if _, err := b.store.InsertRelationship(ctx, store.Relationship{
			SourceEntityID: srcID,
			TargetEntityID: tgtID,
			RelationType:   r.Type,
			Weight:         weight,
			Description:    r.Description,
			SourceChunkID:  &cid,
		}); err != nil {
			slog.Warn("graph: relationship insert failed, skipping",
				"source", r.SourceKey, "target", r.TargetKey, "error", err)
			continue
		}
	}

	return nil
}
