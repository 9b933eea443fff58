package db

import (
	"context"

	"patent-rag/internal/models"
)

// ChunkStore persists the classified chunks of every processed document.
type ChunkStore interface {
	// Load returns everything stored
	Load(ctx context.Context) (models.Metadata, error)
	// Get returns the chunks of one document; ok is false when it was never saved
	Get(ctx context.Context, docPath string) (chunks []models.Chunk, ok bool, err error)
	// Save merges the chunks of docPath into the store, replacing any previous entry for it
	Save(ctx context.Context, docPath string, chunks []models.Chunk) error
	// Reset removes every stored document
	Reset(ctx context.Context) error
	Close() error
}

// Merge returns the key preserving union of existing and incoming.
// An incoming entry replaces the existing entry for the same path wholly.
func Merge(existing, incoming models.Metadata) models.Metadata {
	merged := make(models.Metadata, len(existing)+len(incoming))
	for path, doc := range existing {
		merged[path] = doc
	}
	for path, doc := range incoming {
		merged[path] = doc
	}
	return merged
}
