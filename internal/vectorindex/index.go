// Package vectorindex implements the in-memory embedding index: idempotent
// chunk storage, RBAC-filtered cosine similarity search with result
// caching, and document-level listings.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"rag-knowledge-platform/internal/cache"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
)

// searchCacheSize bounds the number of cached search results.
const searchCacheSize = 256

// cacheKeyPrefixLen is how many leading embedding values participate in the
// search cache key. The short prefix is deliberately collision-tolerant:
// entries are only trusted for their TTL and are dropped on any mutation.
const cacheKeyPrefixLen = 8

// Index stores chunks and serves RBAC-filtered similarity searches.
// Mutations and searches may interleave arbitrarily; only documents sharing
// a documentID contend.
type Index struct {
	mu     sync.RWMutex
	chunks map[string]models.Chunk            // chunk id -> chunk
	byDoc  map[string]map[string]struct{}     // document id -> chunk ids

	searchCache *cache.Cache[string, []models.RetrievalResult]
}

// New creates an empty index.
func New() *Index {
	return &Index{
		chunks:      make(map[string]models.Chunk),
		byDoc:       make(map[string]map[string]struct{}),
		searchCache: cache.New[string, []models.RetrievalResult](searchCacheSize, cache.SearchResultTTL),
	}
}

// Upsert inserts or replaces chunks by id. Existing chunks with other ids
// are untouched. Any cached search results are invalidated.
func (ix *Index) Upsert(chunks []models.Chunk) {
	if len(chunks) == 0 {
		return
	}

	ix.mu.Lock()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = models.ChunkID(c.DocumentID, c.Ordinal)
		}
		if prev, ok := ix.chunks[c.ID]; ok && prev.DocumentID != c.DocumentID {
			delete(ix.byDoc[prev.DocumentID], c.ID)
		}
		ix.chunks[c.ID] = c
		if ix.byDoc[c.DocumentID] == nil {
			ix.byDoc[c.DocumentID] = make(map[string]struct{})
		}
		ix.byDoc[c.DocumentID][c.ID] = struct{}{}
	}
	ix.mu.Unlock()

	// Cached results may now be stale for any query; drop them all rather
	// than tracking which entries reference which documents.
	ix.searchCache.Clear()
}

// DeleteDocument removes every chunk of a document and returns how many
// were removed. Deleting an unknown document is a no-op, not an error.
func (ix *Index) DeleteDocument(documentID string) int {
	ix.mu.Lock()
	ids := ix.byDoc[documentID]
	for id := range ids {
		delete(ix.chunks, id)
	}
	delete(ix.byDoc, documentID)
	removed := len(ids)
	ix.mu.Unlock()

	if removed > 0 {
		ix.searchCache.Clear()
		logger.Debug("document removed from index", "document_id", documentID, "chunks", removed)
	}
	return removed
}

// HasDocument reports whether any chunk of the document is indexed.
func (ix *Index) HasDocument(documentID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byDoc[documentID]) > 0
}

// ChunkCount returns the number of indexed chunks for a document.
func (ix *Index) ChunkCount(documentID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byDoc[documentID])
}

// DocumentIDs returns the ids of all indexed documents.
func (ix *Index) DocumentIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.byDoc))
	for id := range ix.byDoc {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the total number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Search returns the topK most similar visible chunks for the query
// embedding. Fails closed: missing role or department yields an empty
// result set, never unfiltered data. A cache hit short-circuits filtering
// and scoring entirely.
func (ix *Index) Search(queryEmbedding []float32, topK int, f Filters) []models.RetrievalResult {
	if !f.Valid() {
		logger.Warn("search rejected: incomplete RBAC filters",
			"has_role", f.Role != "", "has_department", f.Department != "")
		return []models.RetrievalResult{}
	}
	if topK <= 0 || len(queryEmbedding) == 0 {
		return []models.RetrievalResult{}
	}

	key := searchCacheKey(queryEmbedding, topK, f)
	if cached, ok := ix.searchCache.Get(key); ok {
		return cached
	}

	selector := NewTopK[models.Chunk](topK)

	ix.mu.RLock()
	for _, c := range ix.chunks {
		if !visible(c.Sensitivity, c.Department, f) {
			continue
		}
		score := CosineSimilarity(queryEmbedding, c.Vector)
		selector.Add(score, c)
	}
	ix.mu.RUnlock()

	scored := selector.Results()
	results := make([]models.RetrievalResult, len(scored))
	for i, s := range scored {
		results[i] = models.RetrievalResult{Chunk: s.Item, Score: s.Score}
	}

	ix.searchCache.Set(key, results)
	return results
}

// ListDocuments returns one metadata entry per visible document, derived
// from the document's first chunk. Admin callers bypass all filtering.
// Missing RBAC filters fail closed to an empty list.
func (ix *Index) ListDocuments(f Filters) []models.DocumentMetadata {
	if !f.Valid() {
		return []models.DocumentMetadata{}
	}
	admin := f.IsAdmin()

	ix.mu.RLock()
	docs := make([]models.DocumentMetadata, 0, len(ix.byDoc))
	for docID, ids := range ix.byDoc {
		first, ok := ix.firstChunkLocked(docID)
		if !ok {
			continue
		}
		if !admin && !visible(first.Sensitivity, first.Department, f) {
			continue
		}
		docs = append(docs, models.DocumentMetadata{
			DocumentID:  docID,
			Title:       first.Title,
			Category:    first.Category,
			Sensitivity: first.Sensitivity,
			Department:  first.Department,
			Owner:       first.Owner,
			Link:        first.Link,
			ModifiedAt:  first.ModifiedAt,
			ChunkCount:  len(ids),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	return docs
}

// firstChunkLocked returns the lowest-ordinal chunk of a document.
// Caller holds at least a read lock.
func (ix *Index) firstChunkLocked(documentID string) (models.Chunk, bool) {
	var first models.Chunk
	found := false
	for id := range ix.byDoc[documentID] {
		c := ix.chunks[id]
		if !found || c.Ordinal < first.Ordinal {
			first = c
			found = true
		}
	}
	return first, found
}

// InvalidateCaches drops all cached search results.
func (ix *Index) InvalidateCaches() {
	ix.searchCache.Clear()
}

// StartCacheJanitor sweeps expired search results on the given interval
// until stop is closed.
func (ix *Index) StartCacheJanitor(interval time.Duration, stop <-chan struct{}) {
	ix.searchCache.StartCleanup(interval, stop)
}

// CosineSimilarity computes dot(a,b)/(|a||b|). Dimension mismatches and
// zero-norm vectors score 0 instead of erroring.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// searchCacheKey builds the cache key from a short embedding prefix, the
// canonical role, the department, and topK.
func searchCacheKey(embedding []float32, topK int, f Filters) string {
	n := cacheKeyPrefixLen
	if len(embedding) < n {
		n = len(embedding)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%.6f,", embedding[i])
	}
	return fmt.Sprintf("%s|%s|%s|%d", sb.String(), strings.ToLower(f.Department), NormalizeRole(f.Role), topK)
}
