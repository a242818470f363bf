package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

func unitAt(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func rec(id, session, path string, vec []float32) Record[string] {
	return Record[string]{ID: id, Vector: vec, SessionID: session, Path: path, Item: path}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilaritySymmetricAndScaleInvariant(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.7, -0.4, 3.3}

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("not symmetric: %v vs %v", ab, ba)
	}

	scaled := make([]float32, len(a))
	for i := range a {
		scaled[i] = a[i] * 7.5
	}
	if got := CosineSimilarity(scaled, b); math.Abs(got-ab) > 1e-6 {
		t.Errorf("not scale invariant: %v vs %v", got, ab)
	}
}

func TestQueryKeepsOnlyAboveMean(t *testing.T) {
	idx := New[string](CollectionName)
	if err := idx.Upsert(rec("s:a.go", "s", "a.go", unitAt(0.95))); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(rec("s:b.go", "s", "b.go", unitAt(0.40))); err != nil {
		t.Fatal(err)
	}

	got := idx.Query([]float32{1, 0}, nil, 0, 0.3)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Path != "a.go" {
		t.Errorf("expected a.go, got %s", got[0].Path)
	}
	if math.Abs(got[0].Score-0.95) > 1e-3 {
		t.Errorf("expected score ~0.95, got %v", got[0].Score)
	}
}

func TestQueryResultsNeverBelowMean(t *testing.T) {
	idx := New[string](CollectionName)
	scores := []float64{0.99, 0.9, 0.7, 0.65, 0.5, 0.31, 0.2, -0.4}
	for i, s := range scores {
		path := fmt.Sprintf("f%d.go", i)
		if err := idx.Upsert(rec("s:"+path, "s", path, unitAt(s))); err != nil {
			t.Fatal(err)
		}
	}

	threshold := 0.3
	var sum float64
	var n int
	for _, s := range scores {
		if s >= threshold {
			sum += s
			n++
		}
	}
	mean := sum / float64(n)

	got := idx.Query([]float32{1, 0}, nil, 0, threshold)
	if len(got) == 0 {
		t.Fatal("expected results")
	}
	for i, m := range got {
		if m.Score < mean-1e-6 {
			t.Errorf("result %s score %v below mean %v", m.Path, m.Score, mean)
		}
		if i > 0 && got[i-1].Score < m.Score {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
}

func TestQueryKeepsAllEqualScores(t *testing.T) {
	for _, n := range []int{2, 7, 10} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			idx := New[string](CollectionName)
			for i := 0; i < n; i++ {
				path := fmt.Sprintf("f%d.go", i)
				if err := idx.Upsert(rec("s:"+path, "s", path, []float32{0.7, 0.71414286})); err != nil {
					t.Fatal(err)
				}
			}

			got := idx.Query([]float32{1, 0}, nil, 0, 0)
			if len(got) != n {
				t.Fatalf("expected %d results, got %d", n, len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i-1].Path > got[i].Path {
					t.Errorf("equal scores not ordered by id at %d", i)
				}
			}
		})
	}
}

func TestQueryThresholdAboveMaximumIsEmpty(t *testing.T) {
	idx := New[string](CollectionName)
	_ = idx.Upsert(rec("s:a.go", "s", "a.go", []float32{1, 0}))

	if got := idx.Query([]float32{1, 0}, nil, 0, 1.01); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := New[string](CollectionName)
	if got := idx.Query([]float32{1, 0}, nil, 5, 0); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestQueryMaxResults(t *testing.T) {
	idx := New[string](CollectionName)
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("f%d.go", i)
		_ = idx.Upsert(rec("s:"+path, "s", path, []float32{1, 0}))
	}

	if got := idx.Query([]float32{1, 0}, nil, 2, 0); len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if got := idx.Query([]float32{1, 0}, nil, 0, 0); len(got) != 5 {
		t.Errorf("expected 5 results without limit, got %d", len(got))
	}
}

func TestQueryFilter(t *testing.T) {
	idx := New[string](CollectionName)
	_ = idx.Upsert(rec("one:a.go", "one", "a.go", []float32{1, 0}))
	_ = idx.Upsert(rec("two:a.go", "two", "a.go", []float32{1, 0}))
	r := rec("two:b.go", "two", "b.go", []float32{1, 0})
	r.Metadata = map[string]string{"lang": "go"}
	_ = idx.Upsert(r)

	got := idx.Query([]float32{1, 0}, &Filter{SessionID: "one"}, 0, 0)
	if len(got) != 1 || got[0].ID != "one:a.go" {
		t.Errorf("session filter returned %+v", got)
	}

	got = idx.Query([]float32{1, 0}, &Filter{SessionID: "two", Path: "b.go"}, 0, 0)
	if len(got) != 1 || got[0].ID != "two:b.go" {
		t.Errorf("session+path filter returned %+v", got)
	}

	got = idx.Query([]float32{1, 0}, &Filter{Extra: map[string]string{"lang": "go"}}, 0, 0)
	if len(got) != 1 || got[0].ID != "two:b.go" {
		t.Errorf("extra filter returned %+v", got)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	idx := New[string](CollectionName)
	_ = idx.Upsert(rec("s:a.go", "s", "a.go", []float32{1, 0}))
	_ = idx.Upsert(rec("s:a.go", "s", "a.go", []float32{0, 1}))

	if idx.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", idx.Len())
	}
	got := idx.Query([]float32{0, 1}, nil, 0, 0.99)
	if len(got) != 1 {
		t.Fatalf("expected latest vector to be stored, got %d results", len(got))
	}
}

func TestUpsertCopiesVector(t *testing.T) {
	idx := New[string](CollectionName)
	vec := []float32{1, 0}
	_ = idx.Upsert(rec("s:a.go", "s", "a.go", vec))
	vec[0], vec[1] = 0, 1

	if got := idx.Query([]float32{1, 0}, nil, 0, 0.99); len(got) != 1 {
		t.Error("stored vector changed with caller's slice")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	idx := New[string](CollectionName)
	if err := idx.Upsert(rec("s:a.go", "s", "a.go", []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}

	err := idx.Upsert(rec("s:b.go", "s", "b.go", []float32{1, 0}))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := idx.Upsert(rec("", "s", "c.go", []float32{1, 0, 0})); !errors.Is(err, ErrEmptyID) {
		t.Errorf("expected ErrEmptyID, got %v", err)
	}
	if err := idx.Upsert(rec("s:d.go", "s", "d.go", nil)); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("expected ErrEmptyVector, got %v", err)
	}
	if idx.Dimension() != 3 {
		t.Errorf("expected dimension 3, got %d", idx.Dimension())
	}
}

func TestUpsertManyIsAllOrNothing(t *testing.T) {
	idx := New[string](CollectionName)
	err := idx.UpsertMany([]Record[string]{
		rec("s:a.go", "s", "a.go", []float32{1, 0}),
		rec("s:b.go", "s", "b.go", []float32{1, 0, 0}),
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected no records after failed batch, got %d", idx.Len())
	}
}

func TestQueryByPredicateAndDelete(t *testing.T) {
	idx := New[string](CollectionName)
	_ = idx.Upsert(rec("s:b.go", "s", "b.go", []float32{1, 0}))
	_ = idx.Upsert(rec("s:a.go", "s", "a.go", []float32{1, 0}))
	_ = idx.Upsert(rec("t:a.go", "t", "a.go", []float32{1, 0}))

	got := idx.QueryByPredicate(nil, &Filter{SessionID: "s"})
	if len(got) != 2 || got[0].Path != "a.go" || got[1].Path != "b.go" {
		t.Errorf("unexpected predicate result %+v", got)
	}

	got = idx.QueryByPredicate(func(r Record[string]) bool { return r.Path == "a.go" }, nil)
	if len(got) != 2 {
		t.Errorf("expected 2 records for a.go, got %d", len(got))
	}

	if n := idx.Delete(Filter{SessionID: "s", Path: "a.go"}); n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}
	if n := idx.Delete(Filter{}); n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}
	if idx.Dimension() != 0 {
		t.Errorf("expected dimension reset on empty collection, got %d", idx.Dimension())
	}
}

func TestConcurrentAccess(t *testing.T) {
	idx := New[string](CollectionName)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				path := fmt.Sprintf("w%d-%d.go", w, i%10)
				_ = idx.Upsert(rec("s:"+path, "s", path, []float32{float32(w + 1), float32(i)}))
				_ = idx.Query([]float32{1, 1}, &Filter{SessionID: "s"}, 3, 0)
			}
		}(w)
	}
	wg.Wait()

	if idx.Len() != 80 {
		t.Errorf("expected 80 records, got %d", idx.Len())
	}
}
