package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/helper"
	"patent-rag/internal/models"
)

// FileStore keeps chunk metadata in a single json file
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (models.Metadata, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	meta := models.Metadata{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", s.path, err)
	}
	return meta, nil
}

func (s *FileStore) Get(ctx context.Context, docPath string) ([]models.Chunk, bool, error) {
	meta, err := s.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	doc, ok := meta[docPath]
	if !ok {
		return nil, false, nil
	}
	chunks, err := models.FromRecords(doc.Chunks)
	if err != nil {
		return nil, false, fmt.Errorf("document %s: %w", docPath, err)
	}
	log.Debug().Str("doc", docPath).Int("chunks", len(chunks)).Str("file", s.path).Msg("Loaded chunks")
	return chunks, true, nil
}

func (s *FileStore) Save(ctx context.Context, docPath string, chunks []models.Chunk) error {
	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}
	merged := Merge(existing, models.Metadata{
		docPath: {Chunks: models.ToRecords(chunks)},
	})
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := helper.WriteFileAtomic(s.path, data); err != nil {
		return err
	}
	log.Info().Str("doc", docPath).Int("documents", len(merged)).Str("file", s.path).Msg("Metadata saved")
	return nil
}

func (s *FileStore) Reset(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove metadata file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
