package retriever

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/pkg/esearch"
	"compliance-rag-be/pkg/rag"
)

// EmbedFunc computes dense vectors for a batch of texts. Wrapping the
// embedding adapter in a memoizing cache happens at wiring time.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

type Settings struct {
	Index         string
	VectorField   string
	TopK          int
	LexicalWeight float64
	VectorWeight  float64
}

// ITextRetriever returns top-K passages for a question. It never raises:
// every failure mode degrades to a smaller (possibly empty) result set.
type ITextRetriever interface {
	Retrieve(ctx context.Context, query string) []rag.Knowledge
}

type hybridRetriever struct {
	search   esearch.ISearchClient
	embed    EmbedFunc
	settings Settings
	log      logger.ILogger
}

func NewHybridRetriever(search esearch.ISearchClient, embed EmbedFunc, settings Settings, log logger.ILogger) ITextRetriever {
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.LexicalWeight == 0 && settings.VectorWeight == 0 {
		settings.LexicalWeight = 0.4
		settings.VectorWeight = 0.6
	}
	if settings.VectorField == "" {
		settings.VectorField = "content_vector"
	}
	return &hybridRetriever{search: search, embed: embed, settings: settings, log: log}
}

func (r *hybridRetriever) Retrieve(ctx context.Context, query string) []rag.Knowledge {
	fetch := r.settings.TopK * 3

	vector, err := r.queryVector(ctx, query)
	if err != nil {
		r.log.Warn("TextRetriever", "embedding failed, falling back to lexical-only", map[string]interface{}{"error": err.Error()})
		vector = nil
	}

	var lexical, semantic []esearch.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.search.Search(gctx, r.settings.Index, map[string]interface{}{
			"match": map[string]interface{}{
				"content": map[string]interface{}{"query": query},
			},
		}, fetch)
		if err != nil {
			r.log.Warn("TextRetriever", "lexical search failed", map[string]interface{}{"error": err.Error()})
			return nil
		}
		lexical = hits
		return nil
	})
	if vector != nil {
		g.Go(func() error {
			hits, err := r.search.KNN(gctx, r.settings.Index, r.settings.VectorField, vector, fetch)
			if err != nil {
				r.log.Warn("TextRetriever", "vector search failed", map[string]interface{}{"error": err.Error()})
				return nil
			}
			semantic = hits
			return nil
		})
	}
	_ = g.Wait()

	merged := mergeHits(lexical, semantic, r.settings.LexicalWeight, r.settings.VectorWeight)
	if len(merged) > r.settings.TopK {
		merged = merged[:r.settings.TopK]
	}
	return merged
}

func (r *hybridRetriever) queryVector(ctx context.Context, query string) ([]float32, error) {
	if r.embed == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	vectors, err := r.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return vectors[0], nil
}

// mergeHits normalizes each hit set by max-score division, combines the
// sets by weighted sum and de-duplicates by document id.
func mergeHits(lexical, semantic []esearch.Hit, lexicalWeight, vectorWeight float64) []rag.Knowledge {
	type scored struct {
		hit   esearch.Hit
		score float64
	}
	combined := make(map[string]*scored)

	accumulate := func(hits []esearch.Hit, weight float64) {
		max := 0.0
		for _, h := range hits {
			if h.Score > max {
				max = h.Score
			}
		}
		if max == 0 {
			return
		}
		for _, h := range hits {
			contribution := h.Score / max * weight
			if existing, ok := combined[h.Id]; ok {
				existing.score += contribution
			} else {
				combined[h.Id] = &scored{hit: h, score: contribution}
			}
		}
	}
	accumulate(lexical, lexicalWeight)
	accumulate(semantic, vectorWeight)

	results := make([]rag.Knowledge, 0, len(combined))
	for _, s := range combined {
		results = append(results, toKnowledge(s.hit, s.score))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Id < results[j].Id
	})
	return results
}

func toKnowledge(hit esearch.Hit, score float64) rag.Knowledge {
	title, _ := hit.Source["title"].(string)
	if title == "" {
		title, _ = hit.Source["source_standard"].(string)
	}
	content, _ := hit.Source["content"].(string)
	return rag.Knowledge{
		Id:       hit.Id,
		Title:    title,
		Content:  content,
		Score:    score,
		Source:   "text",
		Metadata: hit.Source,
	}
}
