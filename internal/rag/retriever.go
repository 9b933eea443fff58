package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/chromemdb"
	"patent-rag/internal/config"
	"patent-rag/internal/embedding"
	"patent-rag/internal/models"
)

// Index is the part of the vector index the retriever needs
type Index interface {
	Query(ctx context.Context, vector []float32, k int, filter chromemdb.Filter, withVectors bool) ([]chromemdb.Hit, error)
	Fetch(filter chromemdb.Filter) []chromemdb.Point
}

type TextHit struct {
	Page    int       `json:"page"`
	Content string    `json:"content"`
	Score   float32   `json:"score"`
	Vector  []float32 `json:"-"`
}

type ImageHit struct {
	Page        int     `json:"page"`
	Description string  `json:"description"`
	ImagePath   string  `json:"image_path"`
	Score       float32 `json:"score"`
}

// Retrieval is the evidence gathered for one question
type Retrieval struct {
	Question string     `json:"question"`
	TextHits []TextHit  `json:"text_hits"`
	Images   []ImageHit `json:"images"`
}

type Retriever struct {
	index     Index
	embedder  embedding.Embedder
	topK      int
	maxImages int
}

func NewRetriever(index Index, embedder embedding.Embedder, cfg *config.RAGConfig) *Retriever {
	return &Retriever{
		index:     index,
		embedder:  embedder,
		topK:      cfg.TopK,
		maxImages: cfg.ImageLimit(),
	}
}

// Retrieve finds the top k text chunks for question and ranks the figure
// sheets on the same pages against the retrieved text vectors. The question
// is embedded exactly once.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %w", models.ErrRetrieval, err)
	}

	hits, err := r.index.Query(ctx, vector, r.topK, chromemdb.Filter{Kind: models.KindText}, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
	}

	result := &Retrieval{Question: question, TextHits: make([]TextHit, 0, len(hits))}
	var pages []int
	for _, h := range hits {
		result.TextHits = append(result.TextHits, TextHit{
			Page:    h.Page,
			Content: h.Content,
			Score:   h.Score,
			Vector:  h.Vector,
		})
		if !slices.Contains(pages, h.Page) {
			pages = append(pages, h.Page)
		}
	}
	if len(pages) == 0 {
		log.Debug().Str("question", question).Msg("No text hits")
		return result, nil
	}

	candidates := r.index.Fetch(chromemdb.Filter{Kind: models.KindImageDescription, Pages: pages})
	result.Images = TopSimilarImages(candidates, result.TextHits, r.maxImages)

	log.Debug().
		Ints("pages", pages).
		Int("text_hits", len(result.TextHits)).
		Int("image_candidates", len(candidates)).
		Int("images", len(result.Images)).
		Msg("Retrieved context")
	return result, nil
}

// TopSimilarImages scores every candidate by its best cosine similarity to any
// text hit and keeps the maxImages best. Points or hits without a vector are
// ignored and equal scores keep candidate order.
func TopSimilarImages(candidates []chromemdb.Point, hits []TextHit, maxImages int) []ImageHit {
	if maxImages <= 0 {
		return nil
	}
	var images []ImageHit
	for _, c := range candidates {
		if len(c.Vector) == 0 {
			continue
		}
		best := float32(math.Inf(-1))
		compared := false
		for _, h := range hits {
			if len(h.Vector) == 0 {
				continue
			}
			compared = true
			if s := chromemdb.CosineSimilarity(c.Vector, h.Vector); s > best {
				best = s
			}
		}
		if !compared {
			continue
		}
		images = append(images, ImageHit{
			Page:        c.Page,
			Description: c.Content,
			ImagePath:   c.ImagePath,
			Score:       best,
		})
	}
	sort.SliceStable(images, func(i, j int) bool { return images[i].Score > images[j].Score })
	if len(images) > maxImages {
		images = images[:maxImages]
	}
	return images
}
