package retrieval

import (
	"sort"

	"github.com/evanhollis/covergraph/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// FusedResultInfo holds per-result method contribution metadata.
type FusedResultInfo struct {
	Methods   []string `json:"methods"`
	VecRank   int      `json:"vec_rank,omitempty"`   // 1-based, 0 = not present
	FTSRank   int      `json:"fts_rank,omitempty"`   // 1-based, 0 = not present
	GraphRank int      `json:"graph_rank,omitempty"` // 1-based, 0 = not present
}

// fusedEntry accumulates one chunk's contributions across methods.
type fusedEntry struct {
	result store.RetrievalResult
	score  float64
	info   FusedResultInfo
}

// fuseRRF combines vector, full-text, and graph result lists with
// Reciprocal Rank Fusion: score = sum(weight_i / (k + rank_i)). The
// returned map records which methods contributed to each chunk, keyed
// by ChunkID. Ties break on ChunkID so repeated queries over the same
// policy corpus order identically.
func fuseRRF(
	vecResults, ftsResults, graphResults []store.RetrievalResult,
	weightVec, weightFTS, weightGraph float64,
	maxResults int,
) ([]store.RetrievalResult, map[int64]FusedResultInfo) {
	fused := make(map[int64]*fusedEntry)

	accumulate := func(results []store.RetrievalResult, weight float64, method string, setRank func(*FusedResultInfo, int)) {
		for rank, r := range results {
			entry, ok := fused[r.ChunkID]
			if !ok {
				entry = &fusedEntry{result: r}
				fused[r.ChunkID] = entry
			}
			entry.score += weight / float64(rrfK+rank+1)
			entry.info.Methods = append(entry.info.Methods, method)
			setRank(&entry.info, rank+1)
		}
	}

	accumulate(vecResults, weightVec, "vector", func(fi *FusedResultInfo, rank int) { fi.VecRank = rank })
	accumulate(ftsResults, weightFTS, "fts", func(fi *FusedResultInfo, rank int) { fi.FTSRank = rank })
	accumulate(graphResults, weightGraph, "graph", func(fi *FusedResultInfo, rank int) { fi.GraphRank = rank })

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].result.ChunkID < entries[j].result.ChunkID
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.RetrievalResult, len(entries))
	infoMap := make(map[int64]FusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
		infoMap[e.result.ChunkID] = e.info
	}

	return results, infoMap
}
