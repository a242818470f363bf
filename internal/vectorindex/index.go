// Package vectorindex keeps embedding vectors in memory and answers
// similarity queries with an adaptive, mean-based cutoff.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// CollectionName is the name of the single collection a process keeps.
const CollectionName = "code-embeddings"

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimension already established for the collection.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyID is returned when a record has no identity.
	ErrEmptyID = errors.New("record id is empty")
	// ErrEmptyVector is returned when a record carries no vector.
	ErrEmptyVector = errors.New("record vector is empty")
)

// Record is one embedded item. ID is deterministic for an item so that
// re-embedding overwrites instead of duplicating.
type Record[T any] struct {
	ID        string
	Vector    []float32
	SessionID string
	Path      string
	Metadata  map[string]string
	Item      T
}

// Match is a query hit.
type Match[T any] struct {
	Record[T]
	Score float64
}

// Filter restricts records by metadata. Empty fields are ignored and the
// non-empty ones must all match.
type Filter struct {
	SessionID string
	Path      string
	Extra     map[string]string
}

func (f *Filter) matches(sessionID, path string, meta map[string]string) bool {
	if f == nil {
		return true
	}
	if f.SessionID != "" && f.SessionID != sessionID {
		return false
	}
	if f.Path != "" && f.Path != path {
		return false
	}
	for k, v := range f.Extra {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Index is an in-memory vector collection safe for concurrent use.
type Index[T any] struct {
	name      string
	mu        sync.RWMutex
	records   map[string]Record[T]
	dimension int
}

// New creates an empty collection.
func New[T any](name string) *Index[T] {
	return &Index[T]{
		name:    name,
		records: make(map[string]Record[T]),
	}
}

// Name returns the collection name.
func (idx *Index[T]) Name() string {
	return idx.name
}

// Len returns the number of records.
func (idx *Index[T]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Dimension returns the vector length of the collection, or 0 while empty.
func (idx *Index[T]) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Upsert inserts rec or replaces the record with the same ID.
func (idx *Index[T]) Upsert(rec Record[T]) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.upsertLocked(rec)
}

// UpsertMany upserts all records under one lock. Records are validated
// first so a bad record leaves the collection untouched.
func (idx *Index[T]) UpsertMany(recs []Record[T]) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := idx.dimension
	if len(idx.records) == 0 {
		dim = 0
	}
	for _, rec := range recs {
		if err := validate(rec); err != nil {
			return err
		}
		if dim == 0 {
			dim = len(rec.Vector)
		}
		if len(rec.Vector) != dim {
			return fmt.Errorf("record %s: %w (got %d, want %d)", rec.ID, ErrDimensionMismatch, len(rec.Vector), dim)
		}
	}
	for _, rec := range recs {
		if err := idx.upsertLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index[T]) upsertLocked(rec Record[T]) error {
	if err := validate(rec); err != nil {
		return err
	}
	if len(idx.records) == 0 {
		idx.dimension = len(rec.Vector)
	}
	if len(rec.Vector) != idx.dimension {
		return fmt.Errorf("record %s: %w (got %d, want %d)", rec.ID, ErrDimensionMismatch, len(rec.Vector), idx.dimension)
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	idx.records[rec.ID] = rec
	return nil
}

func validate[T any](rec Record[T]) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, ErrEmptyVector)
	}
	return nil
}

const meanEpsilon = 1e-12

// Query scores every record passing filter against vec and keeps the
// ones that reach threshold and are at least as similar as the mean of
// those survivors. Results are sorted by descending score and truncated
// to maxResults when it is positive.
func (idx *Index[T]) Query(vec []float32, filter *Filter, maxResults int, threshold float64) []Match[T] {
	idx.mu.RLock()
	survivors := make([]Match[T], 0)
	var sum float64
	best := math.Inf(-1)
	for _, rec := range idx.records {
		if !filter.matches(rec.SessionID, rec.Path, rec.Metadata) {
			continue
		}
		score := CosineSimilarity(vec, rec.Vector)
		if score < threshold {
			continue
		}
		survivors = append(survivors, Match[T]{Record: rec, Score: score})
		sum += score
		best = max(best, score)
	}
	idx.mu.RUnlock()

	if len(survivors) == 0 {
		return survivors
	}

	// Summing can round the mean above equal scores; the best survivor
	// is never below the true mean.
	mean := min(sum/float64(len(survivors)), best) - meanEpsilon
	results := survivors[:0]
	for _, m := range survivors {
		if m.Score >= mean {
			results = append(results, m)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// QueryByPredicate returns the records passing both filter and pred,
// ordered by path and then ID.
func (idx *Index[T]) QueryByPredicate(pred func(Record[T]) bool, filter *Filter) []Record[T] {
	idx.mu.RLock()
	var out []Record[T]
	for _, rec := range idx.records {
		if !filter.matches(rec.SessionID, rec.Path, rec.Metadata) {
			continue
		}
		if pred != nil && !pred(rec) {
			continue
		}
		out = append(out, rec)
	}
	idx.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes every record matching filter and reports how many were
// removed. An empty filter matches everything.
func (idx *Index[T]) Delete(filter Filter) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for id, rec := range idx.records {
		if filter.matches(rec.SessionID, rec.Path, rec.Metadata) {
			delete(idx.records, id)
			removed++
		}
	}
	if len(idx.records) == 0 {
		idx.dimension = 0
	}
	return removed
}

// CosineSimilarity returns dot(a,b)/(|a||b|). It is 0 when the lengths
// differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
