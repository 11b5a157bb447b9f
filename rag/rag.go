// Package rag provides the retrieval collaborator: a Retriever interface and
// two reference indexes (process-local and badger-backed) that rank
// documents by query term overlap.
package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/hupe1980/agentlab/core"
)

// DefaultTopK is the default number of documents returned per query.
const DefaultTopK = 5

// DefaultNamespace is queried when a request names no namespaces.
const DefaultNamespace = ""

// Retriever returns up to topK documents of namespace ranked by relevance to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, namespace string) ([]core.Document, error)
}

// RetrieveAll queries every namespace (DefaultNamespace if none) and returns
// the topK best documents across all of them by descending score.
func RetrieveAll(ctx context.Context, r Retriever, query string, topK int, namespaces []string) ([]core.Document, error) {
	if len(namespaces) == 0 {
		namespaces = []string{DefaultNamespace}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	var merged []core.Document
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := r.Retrieve(ctx, query, topK, ns)
		if err != nil {
			return nil, err
		}
		merged = append(merged, docs...)
	}

	sortByScore(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// terms lower-cases text and splits it on anything that is not a letter or digit.
func terms(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[t] = struct{}{}
	}
	return set
}

// score is the fraction of query terms present in content.
func score(query map[string]struct{}, content string) float64 {
	if len(query) == 0 {
		return 0
	}
	doc := terms(content)
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// ranker accumulates scored candidates.
type ranker struct {
	query map[string]struct{}
	docs  []core.Document
}

func newRanker(query string) *ranker {
	return &ranker{query: terms(query)}
}

// offer scores d and keeps it if at least one query term matches.
func (r *ranker) offer(d core.Document) {
	s := score(r.query, d.Content)
	if s <= 0 {
		return
	}
	d.Score = s
	r.docs = append(r.docs, d)
}

func (r *ranker) top(k int) []core.Document {
	sortByScore(r.docs)
	if k > 0 && len(r.docs) > k {
		return r.docs[:k]
	}
	if r.docs == nil {
		return []core.Document{}
	}
	return r.docs
}

// sortByScore orders by descending score, then namespace and ID for stability.
func sortByScore(docs []core.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		if ni, nj := docs[i].Namespace(), docs[j].Namespace(); ni != nj {
			return ni < nj
		}
		return docs[i].ID < docs[j].ID
	})
}

func withNamespace(d core.Document, namespace string) core.Document {
	md := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		md[k] = v
	}
	md[core.MetadataNamespace] = namespace
	d.Metadata = md
	return d
}
