package indexer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/vectorindex"
)

// RetrieverConfig tunes embedding and retrieval.
type RetrieverConfig struct {
	// Threshold is the minimum cosine similarity kept before the mean cutoff.
	Threshold float64
	// MaxResults caps the number of units returned; 0 means no cap.
	MaxResults int
	// Concurrency bounds in-flight embedding batches.
	Concurrency int
	// MaxBatchInputs and MaxBatchChars bound a single embedding request.
	MaxBatchInputs int
	MaxBatchChars  int
	// CostPerToken prices embedding usage.
	CostPerToken float64
}

// DefaultRetrieverConfig returns the defaults used by the CLI.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Threshold:      0.3,
		MaxResults:     8,
		Concurrency:    4,
		MaxBatchInputs: 64,
		MaxBatchChars:  100_000,
	}
}

// ScoredUnit is a retrieved unit and its similarity to the query.
type ScoredUnit struct {
	Unit  CodeUnit
	Score float64
}

// Retrieval is the result of Retrieve.
type Retrieval struct {
	Units []ScoredUnit
	Usage engine.Usage
}

// ContextRetriever embeds code units into a session-partitioned vector
// index and selects the ones relevant to a query.
type ContextRetriever struct {
	embedder Embedder
	config   RetrieverConfig

	index  *vectorindex.Index[CodeUnit]
	ledger *Ledger
	paths  *PathIndex

	// serializes IndexUnits so ledger checks and upserts don't interleave
	indexMu sync.Mutex
}

// NewContextRetriever creates a retriever with empty in-memory stores.
func NewContextRetriever(ctx context.Context, embedder Embedder, config RetrieverConfig) (*ContextRetriever, error) {
	defaults := DefaultRetrieverConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxBatchInputs <= 0 {
		config.MaxBatchInputs = defaults.MaxBatchInputs
	}
	if config.MaxBatchChars <= 0 {
		config.MaxBatchChars = defaults.MaxBatchChars
	}

	ledger, err := NewLedger(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := NewPathIndex()
	if err != nil {
		ledger.Close()
		return nil, err
	}

	return &ContextRetriever{
		embedder: embedder,
		config:   config,
		index:    vectorindex.New[CodeUnit](vectorindex.CollectionName),
		ledger:   ledger,
		paths:    paths,
	}, nil
}

// Close releases the ledger and path index.
func (r *ContextRetriever) Close() error {
	lerr := r.ledger.Close()
	perr := r.paths.Close()
	if lerr != nil {
		return lerr
	}
	return perr
}

// Config returns the retriever configuration.
func (r *ContextRetriever) Config() RetrieverConfig {
	return r.config
}

func recordID(session string, u CodeUnit) string {
	return session + ":" + u.UnitID()
}

type pendingUnit struct {
	unit CodeUnit
	hash string
	text string
}

// IndexUnits embeds units whose content changed since they were last
// indexed for session. Either every pending unit is stored or none is.
func (r *ContextRetriever) IndexUnits(ctx context.Context, units []CodeUnit, session string) (engine.Usage, error) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	pending, err := r.pending(ctx, units, session)
	if err != nil {
		return engine.Usage{}, err
	}
	if len(pending) == 0 {
		return engine.Usage{}, nil
	}

	batches := r.batch(pending)
	vectors := make([][][]float32, len(batches))
	tokens := make([]int, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			texts := make([]string, len(b))
			for j, p := range b {
				texts[j] = p.text
			}
			vecs, n, err := r.embedder.Embed(gctx, texts)
			if err != nil {
				return engine.WrapProviderError("embed", err, 0, "")
			}
			if len(vecs) != len(texts) {
				return &engine.ProviderError{
					Op:    "embed",
					Err:   fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(texts)),
					Class: engine.RetryClassNonRetryable,
				}
			}
			vectors[i] = vecs
			tokens[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("❌ Embedding failed for session %s: %v", session, err)
		return engine.Usage{}, err
	}

	var usage engine.Usage
	records := make([]vectorindex.Record[CodeUnit], 0, len(pending))
	for i, b := range batches {
		usage.Tokens += tokens[i]
		for j, p := range b {
			records = append(records, vectorindex.Record[CodeUnit]{
				ID:        recordID(session, p.unit),
				Vector:    vectors[i][j],
				SessionID: session,
				Path:      p.unit.Path,
				Metadata: map[string]string{
					"lang":   string(p.unit.Lang),
					"symbol": p.unit.Symbol,
				},
				Item: p.unit,
			})
		}
	}
	usage.Cost = engine.EstimateCost(usage.Tokens, r.config.CostPerToken)

	if err := r.index.UpsertMany(records); err != nil {
		return engine.Usage{}, fmt.Errorf("failed to store embeddings: %w", err)
	}
	for _, p := range pending {
		if err := r.ledger.MarkIndexed(ctx, session, p.unit, p.hash, engine.EstimateTokens(p.text)); err != nil {
			return usage, err
		}
		if err := r.paths.Add(session, p.unit.Path); err != nil {
			log.Printf("⚠️  Failed to add %s to path index: %v", p.unit.Path, err)
		}
	}

	log.Printf("✅ Indexed %d units in %d batches (%d tokens)", len(pending), len(batches), usage.Tokens)
	return usage, nil
}

// pending returns the units that need embedding, last occurrence wins.
func (r *ContextRetriever) pending(ctx context.Context, units []CodeUnit, session string) ([]pendingUnit, error) {
	seen := make(map[string]int, len(units))
	var out []pendingUnit
	for _, u := range units {
		hash := u.Hash()
		needs, err := r.ledger.NeedsIndex(ctx, session, u.UnitID(), hash)
		if err != nil {
			return nil, err
		}
		if !needs {
			continue
		}
		p := pendingUnit{unit: u, hash: hash, text: u.EmbeddingText(r.config.MaxBatchChars)}
		if i, ok := seen[u.UnitID()]; ok {
			out[i] = p
			continue
		}
		seen[u.UnitID()] = len(out)
		out = append(out, p)
	}
	return out, nil
}

// batch splits pending units so no request exceeds MaxBatchInputs inputs
// or MaxBatchChars characters.
func (r *ContextRetriever) batch(pending []pendingUnit) [][]pendingUnit {
	var batches [][]pendingUnit
	var current []pendingUnit
	chars := 0
	for _, p := range pending {
		if len(current) > 0 && (len(current) >= r.config.MaxBatchInputs || chars+len(p.text) > r.config.MaxBatchChars) {
			batches = append(batches, current)
			current = nil
			chars = 0
		}
		current = append(current, p)
		chars += len(p.text)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Retrieve returns the units of session most relevant to query.
func (r *ContextRetriever) Retrieve(ctx context.Context, query string, session string) (Retrieval, error) {
	if r.index.Len() == 0 {
		return Retrieval{}, nil
	}

	vecs, tokens, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Retrieval{}, engine.WrapProviderError("embed query", err, 0, "")
	}
	if len(vecs) != 1 {
		return Retrieval{}, &engine.ProviderError{
			Op:    "embed query",
			Err:   fmt.Errorf("got %d vectors for 1 input", len(vecs)),
			Class: engine.RetryClassNonRetryable,
		}
	}

	matches := r.index.Query(vecs[0], &vectorindex.Filter{SessionID: session}, r.config.MaxResults, r.config.Threshold)

	out := Retrieval{
		Units: make([]ScoredUnit, 0, len(matches)),
		Usage: engine.Usage{
			Tokens: tokens,
			Cost:   engine.EstimateCost(tokens, r.config.CostPerToken),
		},
	}
	for _, m := range matches {
		out.Units = append(out.Units, ScoredUnit{Unit: m.Item, Score: m.Score})
	}

	log.Printf("🔍 Retrieved %d units for session %s", len(out.Units), session)
	return out, nil
}

// Forget removes every record and ledger row of path in session.
func (r *ContextRetriever) Forget(ctx context.Context, session, path string) error {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	removed := r.index.Delete(vectorindex.Filter{SessionID: session, Path: path})
	if _, err := r.ledger.Forget(ctx, session, path); err != nil {
		return err
	}
	if err := r.paths.Remove(session, path); err != nil {
		log.Printf("⚠️  Failed to remove %s from path index: %v", path, err)
	}
	if removed > 0 {
		log.Printf("📝 Forgot %d units of %s", removed, path)
	}
	return nil
}

// Lookup returns the indexed whole-file unit of path.
func (r *ContextRetriever) Lookup(session, path string) (CodeUnit, bool) {
	recs := r.index.QueryByPredicate(func(rec vectorindex.Record[CodeUnit]) bool {
		return rec.Item.Symbol == ""
	}, &vectorindex.Filter{SessionID: session, Path: path})
	if len(recs) == 0 {
		return CodeUnit{}, false
	}
	return recs[0].Item, true
}

// ResolvePath maps a loosely written file name to an indexed path.
func (r *ContextRetriever) ResolvePath(session, name string) (string, bool, error) {
	return r.paths.Resolve(session, name)
}

// Paths lists the indexed paths of session.
func (r *ContextRetriever) Paths(ctx context.Context, session string) ([]string, error) {
	return r.ledger.Paths(ctx, session)
}

// Stats reports the number of indexed units and their estimated tokens.
func (r *ContextRetriever) Stats(ctx context.Context, session string) (int, int, error) {
	return r.ledger.Stats(ctx, session)
}
