package indexer

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// PathIndex resolves loosely written file names ("retriever.go",
// "indexer/retriever") to indexed paths. It is a memory-only bleve index.
type PathIndex struct {
	index bleve.Index
}

// NewPathIndex creates an empty path index.
func NewPathIndex() (*PathIndex, error) {
	idx, err := bleve.NewMemOnly(buildPathMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create path index: %w", err)
	}
	return &PathIndex{index: idx}, nil
}

func buildPathMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	sessionField := bleve.NewTextFieldMapping()
	sessionField.Analyzer = keyword.Name
	sessionField.Store = false
	docMapping.AddFieldMappingsAt("session", sessionField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt("path", pathField)

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = standard.Name
	nameField.Store = false
	docMapping.AddFieldMappingsAt("name", nameField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func pathDocID(session, path string) string {
	return session + ":" + path
}

// pathTerms splits a path into searchable words.
func pathTerms(p string) string {
	return strings.Join(strings.FieldsFunc(p, func(r rune) bool {
		switch r {
		case '/', '\\', '.', '_', '-', ' ':
			return true
		}
		return false
	}), " ")
}

// Add indexes path for session.
func (p *PathIndex) Add(session, path string) error {
	doc := map[string]interface{}{
		"session": session,
		"path":    path,
		"name":    pathTerms(path),
	}
	return p.index.Index(pathDocID(session, path), doc)
}

// Remove drops path from the session.
func (p *PathIndex) Remove(session, path string) error {
	return p.index.Delete(pathDocID(session, path))
}

// Resolve maps name to an indexed path of session. An exact path wins,
// then the shortest path ending in "/name", then the best word match.
func (p *PathIndex) Resolve(session, name string) (string, bool, error) {
	name = strings.TrimPrefix(strings.TrimSpace(strings.ReplaceAll(name, `\`, "/")), "./")
	if name == "" {
		return "", false, nil
	}

	sessionQuery := bleve.NewTermQuery(session)
	sessionQuery.SetField("session")

	exact := bleve.NewTermQuery(name)
	exact.SetField("path")
	if hits, err := p.search(session, bleve.NewConjunctionQuery(sessionQuery, exact), 1); err != nil {
		return "", false, err
	} else if len(hits) > 0 {
		return hits[0], true, nil
	}

	suffix := bleve.NewWildcardQuery("*/" + name)
	suffix.SetField("path")
	hits, err := p.search(session, bleve.NewConjunctionQuery(sessionQuery, suffix), 50)
	if err != nil {
		return "", false, err
	}
	if len(hits) > 0 {
		sort.Slice(hits, func(i, j int) bool {
			if len(hits[i]) != len(hits[j]) {
				return len(hits[i]) < len(hits[j])
			}
			return hits[i] < hits[j]
		})
		return hits[0], true, nil
	}

	// Word matching is only for names written without an extension,
	// where "go" or "ts" alone would match everything.
	terms := pathTerms(name)
	if terms == "" || path.Ext(name) != "" {
		return "", false, nil
	}
	words := bleve.NewMatchQuery(terms)
	words.SetField("name")
	words.SetOperator(query.MatchQueryOperatorAnd)
	hits, err = p.search(session, bleve.NewConjunctionQuery(sessionQuery, words), 1)
	if err != nil {
		return "", false, err
	}
	if len(hits) > 0 {
		return hits[0], true, nil
	}
	return "", false, nil
}

func (p *PathIndex) search(session string, q query.Query, size int) ([]string, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size

	res, err := p.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("path search failed: %w", err)
	}

	prefix := pathDocID(session, "")
	paths := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		paths = append(paths, strings.TrimPrefix(hit.ID, prefix))
	}
	return paths, nil
}

// Close closes the index.
func (p *PathIndex) Close() error {
	return p.index.Close()
}
