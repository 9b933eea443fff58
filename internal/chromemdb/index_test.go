package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patent-rag/internal/models"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	drop    bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, f.vectors[t])
	}
	if f.drop {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vectors[text], f.err
}

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		models.TextChunk{Page: 1, Content: "claim one"},
		models.TextChunk{Page: 2, Content: "description"},
		models.ImageChunk{Page: 2, Description: "figure two", ImagePath: "img/doc_page_2.png"},
		models.TextChunk{Page: 3, Content: "claim two"},
	}
}

func sampleEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"claim one":   {1, 0},
		"description": {0, 1},
		"figure two":  {1, 0},
		"claim two":   {2, 0},
	}}
}

func buildSample(t *testing.T) *VectorIndex {
	t.Helper()
	idx, err := Build(context.Background(), "doc.pdf", sampleChunks(), sampleEmbedder(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []models.Chunk
		embedder *fakeEmbedder
	}{
		{"no chunks", nil, sampleEmbedder()},
		{"embedding failure", sampleChunks(), &fakeEmbedder{err: errors.New("connection refused")}},
		{"count mismatch", sampleChunks(), &fakeEmbedder{vectors: sampleEmbedder().vectors, drop: true}},
		{"empty vector", sampleChunks(), &fakeEmbedder{vectors: map[string][]float32{"claim one": {1, 0}}}},
		{"dimension mismatch", sampleChunks(), &fakeEmbedder{vectors: map[string][]float32{
			"claim one":   {1, 0},
			"description": {0, 1, 0},
			"figure two":  {1, 0},
			"claim two":   {2, 0},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Build(context.Background(), "doc.pdf", tt.chunks, tt.embedder, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrIndex)
			assert.Nil(t, idx)
		})
	}
}

func TestBuildPoints(t *testing.T) {
	idx := buildSample(t)
	assert.Equal(t, 4, idx.Len())

	all := idx.Fetch(Filter{})
	require.Len(t, all, 4)
	for i, p := range all {
		assert.Equal(t, i, p.Seq)
		assert.NotEmpty(t, p.ID)
	}
	assert.Equal(t, models.KindImageDescription, all[2].Kind)
	assert.Equal(t, "img/doc_page_2.png", all[2].ImagePath)

	again, err := Build(context.Background(), "doc.pdf", sampleChunks(), sampleEmbedder(), Options{})
	require.NoError(t, err)
	for i, p := range again.Fetch(Filter{}) {
		assert.Equal(t, all[i].ID, p.ID, "point ids are deterministic")
	}
}

func TestQuery(t *testing.T) {
	idx := buildSample(t)
	ctx := context.Background()

	t.Run("text only, ties keep insertion order", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{1, 0}, 3, Filter{Kind: models.KindText}, false)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []int{1, 3, 2}, []int{hits[0].Page, hits[1].Page, hits[2].Page})
		assert.InDelta(t, 1, hits[0].Score, 1e-6)
		assert.InDelta(t, 1, hits[1].Score, 1e-6)
		assert.InDelta(t, 0, hits[2].Score, 1e-6)
		for _, h := range hits {
			assert.Equal(t, models.KindText, h.Kind)
			assert.Nil(t, h.Vector)
		}
	})

	t.Run("top k cut", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{0, 1}, 1, Filter{Kind: models.KindText}, true)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, 2, hits[0].Page)
		assert.Equal(t, []float32{0, 1}, hits[0].Vector)
	})

	t.Run("k larger than kind count", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{1, 0}, 10, Filter{Kind: models.KindImageDescription}, true)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "img/doc_page_2.png", hits[0].ImagePath)
	})

	t.Run("page filter", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{1, 0}, 3, Filter{Kind: models.KindText, Pages: []int{2, 3}}, false)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, 3, hits[0].Page)
		assert.Equal(t, 2, hits[1].Page)
	})

	t.Run("zero query scores zero", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{0, 0}, 3, Filter{Kind: models.KindText}, false)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{hits[0].Page, hits[1].Page, hits[2].Page})
		for _, h := range hits {
			assert.Zero(t, h.Score)
		}
	})

	t.Run("zero k", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{1, 0}, 0, Filter{}, false)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := idx.Query(ctx, []float32{1, 0, 0}, 3, Filter{}, false)
		assert.ErrorIs(t, err, models.ErrIndex)
	})
}

func TestQueryTiesAcrossTopK(t *testing.T) {
	var chunks []models.Chunk
	vectors := map[string][]float32{}
	for page := 1; page <= 12; page++ {
		text := fmt.Sprintf("claim %d", page)
		chunks = append(chunks, models.TextChunk{Page: page, Content: text})
		vectors[text] = []float32{1, 1}
	}
	chunks = append(chunks, models.TextChunk{Page: 13, Content: "abstract"})
	vectors["abstract"] = []float32{0, 1}

	idx, err := Build(context.Background(), "doc.pdf", chunks, &fakeEmbedder{vectors: vectors}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	for range 20 {
		hits, err := idx.Query(context.Background(), []float32{1, 1}, 3, Filter{Kind: models.KindText}, false)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{hits[0].Page, hits[1].Page, hits[2].Page})
	}
}

func TestQueryUsesCollection(t *testing.T) {
	idx := buildSample(t)
	ctx := context.Background()

	claimTwo := idx.Fetch(Filter{Kind: models.KindText, Pages: []int{3}})
	require.Len(t, claimTwo, 1)
	require.NoError(t, idx.manager.collection.Delete(ctx, nil, nil, claimTwo[0].ID))

	hits, err := idx.Query(ctx, []float32{1, 0}, 1, Filter{Kind: models.KindText}, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Page)

	hits, err = idx.Query(ctx, []float32{1, 0}, 3, Filter{Kind: models.KindText}, false)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "only points held by the collection are ranked")
}

func TestQueryZeroVectorPoint(t *testing.T) {
	chunks := []models.Chunk{
		models.TextChunk{Page: 1, Content: "against"},
		models.TextChunk{Page: 2, Content: "blank"},
		models.TextChunk{Page: 3, Content: "along"},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"against": {-1, 0},
		"blank":   {0, 0},
		"along":   {1, 0},
	}}
	idx, err := Build(context.Background(), "doc.pdf", chunks, embedder, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.manager.Count())

	hits, err := idx.Query(context.Background(), []float32{1, 0}, 3, Filter{}, false)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{hits[0].Page, hits[1].Page, hits[2].Page})
	assert.Zero(t, hits[1].Score)
	assert.InDelta(t, -1, hits[2].Score, 1e-6)
}

func TestFetch(t *testing.T) {
	idx := buildSample(t)

	images := idx.Fetch(Filter{Kind: models.KindImageDescription, Pages: []int{2, 7}})
	require.Len(t, images, 1)
	assert.Equal(t, []float32{1, 0}, images[0].Vector)

	assert.Empty(t, idx.Fetch(Filter{Kind: models.KindImageDescription, Pages: []int{1, 3}}))
	assert.Len(t, idx.Fetch(Filter{Kind: models.KindText}), 3)
}

func TestBuildPersistAndExport(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Collection:    "patents",
		PersistDir:    filepath.Join(dir, "db"),
		ExportPath:    filepath.Join(dir, "snapshot.gob.enc"),
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}

	for range 2 {
		idx, err := Build(context.Background(), "doc.pdf", sampleChunks(), sampleEmbedder(), opts)
		require.NoError(t, err)
		assert.Equal(t, 4, idx.manager.Count())
		require.NoError(t, idx.Close())
	}
	assert.DirExists(t, opts.PersistDir)
	assert.FileExists(t, opts.ExportPath)
}

func TestExportRequiresKey(t *testing.T) {
	_, err := Build(context.Background(), "doc.pdf", sampleChunks(), sampleEmbedder(), Options{
		ExportPath: filepath.Join(t.TempDir(), "snapshot.gob"),
	})
	assert.ErrorIs(t, err, models.ErrIndex)
}
