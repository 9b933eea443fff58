package chromemdb

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"patent-rag/internal/embedding"
	"patent-rag/internal/helper"
	"patent-rag/internal/models"
)

const defaultCollection = "patent_chunks"

// Point is an embedded chunk. It is not modified after the index is built.
type Point struct {
	ID        string
	Seq       int
	Kind      models.ChunkKind
	Page      int
	Content   string
	ImagePath string
	Vector    []float32
}

// Hit is a point returned by a similarity query
type Hit struct {
	Point
	Score float32
}

// Filter restricts a query or fetch to one chunk kind and optionally a page set
type Filter struct {
	Kind  models.ChunkKind
	Pages []int
}

func (f Filter) match(p Point) bool {
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	return len(f.Pages) == 0 || slices.Contains(f.Pages, p.Page)
}

type Options struct {
	Collection    string
	PersistDir    string
	Compress      bool
	ExportPath    string
	EncryptionKey string
}

// VectorIndex is the nearest neighbour store for one document's chunks
type VectorIndex struct {
	manager *VectorDBManager
	points  []Point
	byID    map[string]int
	dim     int
}

// Build embeds every chunk once and loads the points into a fresh collection
func Build(ctx context.Context, docPath string, chunks []models.Chunk, embedder embedding.Embedder, opts Options) (*VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index for %s", models.ErrIndex, docPath)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed chunks: %w", models.ErrIndex, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrIndex, len(vectors), len(chunks))
	}

	idx := &VectorIndex{
		points: make([]Point, 0, len(chunks)),
		byID:   make(map[string]int, len(chunks)),
		dim:    len(vectors[0]),
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for seq, c := range chunks {
		vec := vectors[seq]
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %d (page %d)", models.ErrIndex, seq, c.PageNumber())
		}
		if len(vec) != idx.dim {
			return nil, fmt.Errorf("%w: vector for chunk %d has dimension %d, want %d", models.ErrIndex, seq, len(vec), idx.dim)
		}
		p := Point{
			ID:      helper.PointID(docPath, c.PageNumber(), seq),
			Seq:     seq,
			Kind:    c.Kind(),
			Page:    c.PageNumber(),
			Content: c.Text(),
			Vector:  slices.Clone(vec),
		}
		if img, ok := c.(models.ImageChunk); ok {
			p.ImagePath = img.ImagePath
		}
		idx.byID[p.ID] = len(idx.points)
		idx.points = append(idx.points, p)
		// chromem normalizes stored vectors, so a zero vector stays out of the collection and scores 0
		if norm(vec) == 0 {
			log.Warn().Str("doc", docPath).Int("seq", seq).Int("page", p.Page).Msg("Zero embedding, point excluded from the collection")
			continue
		}
		docs = append(docs, chromem.Document{
			ID: p.ID,
			Metadata: map[string]string{
				"kind":       string(p.Kind),
				"page":       strconv.Itoa(p.Page),
				"seq":        strconv.Itoa(p.Seq),
				"image_path": p.ImagePath,
			},
			Embedding: slices.Clone(vec),
			Content:   p.Content,
		})
	}

	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	manager, err := NewVectorDBManager(opts.PersistDir, opts.Compress, opts.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	if _, err := manager.ResetCollection(collection); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	if err := manager.CreateDocs(ctx, docs); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	idx.manager = manager

	if opts.ExportPath != "" {
		if err := manager.Export(opts.ExportPath); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
		}
		log.Info().Str("file", opts.ExportPath).Msg("Exported index snapshot")
	}

	text, images := models.CountKinds(chunks)
	log.Info().
		Str("doc", docPath).
		Int("text_points", text).
		Int("image_points", images).
		Int("dim", idx.dim).
		Msg("Built vector index")
	return idx, nil
}

func (idx *VectorIndex) Len() int { return len(idx.points) }

// Query returns the k points matching filter that are most similar to vector,
// ranked by the collection's cosine similarity. Equal scores keep insertion order.
// Vectors are only attached when withVectors is set.
func (idx *VectorIndex) Query(ctx context.Context, vector []float32, k int, filter Filter, withVectors bool) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != idx.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d", models.ErrIndex, len(vector), idx.dim)
	}

	var hits []Hit
	// chromem normalizes the query, which is undefined for a zero vector
	if norm(vector) == 0 {
		for _, p := range idx.Fetch(filter) {
			hits = append(hits, Hit{Point: p})
		}
	} else {
		var err error
		if hits, err = idx.search(ctx, vector, k, filter); err != nil {
			return nil, err
		}
	}

	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		if withVectors {
			hits[i].Vector = slices.Clone(hits[i].Vector)
		} else {
			hits[i].Vector = nil
		}
	}
	return hits, nil
}

// search asks the collection for the nearest points, growing the request until
// every point tied with the k-th score is known. Points with a zero vector are
// added with a score of 0. Hits are sorted by score, then insertion order.
func (idx *VectorIndex) search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	var zero []Hit
	n := 0
	for _, p := range idx.points {
		if filter.Kind != "" && p.Kind != filter.Kind {
			continue
		}
		if norm(p.Vector) > 0 {
			n++
		} else if filter.match(p) {
			zero = append(zero, Hit{Point: p})
		}
	}
	if n == 0 {
		return zero, nil
	}

	var where map[string]string
	if filter.Kind != "" {
		where = map[string]string{"kind": string(filter.Kind)}
	}
	// one extra result shows whether a tie crosses the k-th position
	want := min(k+1, n)
	for {
		results, err := idx.manager.Search(ctx, vector, want, where)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
		}

		hits := make([]Hit, 0, len(results)+len(zero))
		for _, r := range results {
			pos, ok := idx.byID[r.ID]
			if !ok {
				return nil, fmt.Errorf("%w: unknown point id %s", models.ErrIndex, r.ID)
			}
			if p := idx.points[pos]; filter.match(p) {
				hits = append(hits, Hit{Point: p, Score: r.Similarity})
			}
		}
		hits = append(hits, zero...)
		sortHits(hits)

		// points left out score at most the last result's similarity
		if want == n || (len(results) > 0 && len(hits) >= k && hits[k-1].Score > results[len(results)-1].Similarity) {
			return hits, nil
		}
		want = min(want*2, n)
	}
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Seq < hits[j].Seq
	})
}

// Fetch returns every point matching filter in insertion order, vectors included
func (idx *VectorIndex) Fetch(filter Filter) []Point {
	var points []Point
	for _, p := range idx.points {
		if filter.match(p) {
			points = append(points, p)
		}
	}
	return points
}

// Close drops an in-memory collection. Persisted collections are kept until the next build.
func (idx *VectorIndex) Close() error {
	if idx.manager == nil || idx.manager.dbPath != "" {
		return nil
	}
	return idx.manager.DeleteCollection()
}

// CosineSimilarity returns 0 for vectors of different length or with zero norm
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
