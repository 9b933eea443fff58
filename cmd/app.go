package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/config"
	"patent-rag/internal/db"
	"patent-rag/internal/embedding"
	"patent-rag/internal/helper"
	"patent-rag/internal/llmservice"
	"patent-rag/internal/parser"
	"patent-rag/internal/pipeline"
)

// app holds the collaborators of one command invocation
type app struct {
	cfg      *config.Config
	store    db.ChunkStore
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runner := helper.NewExecRunner()
	visionModel, err := llmservice.NewVisionModel(&cfg.VisionLLM)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize vision model: %w", err)
	}
	classifier := parser.NewClassifier(
		parser.NewPopplerRenderer(runner, cfg.Extract.RenderCmd),
		parser.NewTesseractOCR(runner, cfg.Extract.OCRCmd, cfg.Extract.OCRLanguage),
		llmservice.NewImageDescriber(visionModel),
		parser.ClassifierOptions{
			ImageDir:  cfg.Paths.ImageDir,
			ImageDPI:  cfg.Extract.ImageDPI,
			OCRDPI:    cfg.Extract.OCRDPI,
			BlurSigma: cfg.Extract.Blur(),
		},
	)
	var extractorOpts []parser.ExtractorOption
	if cfg.Extract.Progress {
		extractorOpts = append(extractorOpts, parser.WithProgress(os.Stderr))
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:   cfg,
		store: store,
		pipeline: pipeline.New(
			cfg,
			store,
			parser.NewExtractor(classifier, extractorOpts...),
			embedder,
			llmservice.NewDispatcher(runner, &cfg.Generation, &cfg.Paths),
		),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (db.ChunkStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return db.NewPGStore(ctx, &cfg.Store)
	default:
		return db.NewFileStore(cfg.Paths.MetadataFile), nil
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing chunk store")
	}
}
