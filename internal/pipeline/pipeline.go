package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/chromemdb"
	"patent-rag/internal/config"
	"patent-rag/internal/db"
	"patent-rag/internal/embedding"
	"patent-rag/internal/helper"
	"patent-rag/internal/llmservice"
	"patent-rag/internal/models"
	"patent-rag/internal/rag"
)

type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, filePath string) ([]models.Chunk, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, modality llmservice.Modality) (string, error)
	ResetTranscripts() error
}

// Pipeline runs extraction, indexing and question answering for one document at a time
type Pipeline struct {
	cfg       *config.Config
	store     db.ChunkStore
	extractor DocumentExtractor
	embedder  embedding.Embedder
	generator Generator
	console   io.Writer
}

type Option func(*Pipeline)

// WithConsole sets where visible answers are echoed
func WithConsole(w io.Writer) Option {
	return func(p *Pipeline) {
		p.console = w
	}
}

func New(cfg *config.Config, store db.ChunkStore, extractor DocumentExtractor, embedder embedding.Embedder, generator Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		generator: generator,
		console:   os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadOrExtract returns the stored chunks of docPath, extracting and saving
// them first when the store has none or force is set.
func (p *Pipeline) LoadOrExtract(ctx context.Context, docPath string, force bool) ([]models.Chunk, error) {
	if !force {
		chunks, ok, err := p.store.Get(ctx, docPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks: %w", err)
		}
		if ok {
			log.Info().Str("doc", docPath).Int("chunks", len(chunks)).Msg("Found existing chunks, skipping extraction")
			return chunks, nil
		}
	}

	chunks, err := p.extractor.ExtractDocument(ctx, docPath)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, docPath, chunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}
	return chunks, nil
}

// ExtractAll extracts every PDF matching pattern into the store
func (p *Pipeline) ExtractAll(ctx context.Context, pattern string, force bool) ([]string, error) {
	docs, err := ExpandInputs(pattern)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if _, err := p.LoadOrExtract(ctx, doc, force); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (p *Pipeline) indexOptions() chromemdb.Options {
	return chromemdb.Options{
		Collection:    p.cfg.Index.Collection,
		PersistDir:    p.cfg.Index.PersistDir,
		Compress:      p.cfg.Index.Compress,
		ExportPath:    p.cfg.Index.ExportPath,
		EncryptionKey: p.cfg.Index.EncryptionKey,
	}
}

// BuildIndex embeds the chunks of docPath into a fresh vector index
func (p *Pipeline) BuildIndex(ctx context.Context, docPath string, chunks []models.Chunk) (*chromemdb.VectorIndex, error) {
	return chromemdb.Build(ctx, docPath, chunks, p.embedder, p.indexOptions())
}

// Prepare loads or extracts docPath and builds its index and retriever
func (p *Pipeline) Prepare(ctx context.Context, docPath string) (*chromemdb.VectorIndex, *rag.Retriever, error) {
	chunks, err := p.LoadOrExtract(ctx, docPath, false)
	if err != nil {
		return nil, nil, err
	}
	idx, err := p.BuildIndex(ctx, docPath, chunks)
	if err != nil {
		return nil, nil, err
	}
	return idx, rag.NewRetriever(idx, p.embedder, &p.cfg.RAG), nil
}

func (p *Pipeline) assembler() rag.Assembler {
	return rag.Assembler{MaxBytes: p.cfg.RAG.MaxBytes, PartialMinBytes: p.cfg.RAG.PartialMin()}
}

// Query retrieves and assembles the prompts for question without generating
func (p *Pipeline) Query(ctx context.Context, docPath, question string) (*rag.Retrieval, models.PromptPair, error) {
	idx, retriever, err := p.Prepare(ctx, docPath)
	if err != nil {
		return nil, models.PromptPair{}, err
	}
	defer idx.Close()

	retrieval, err := retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, models.PromptPair{}, err
	}
	return retrieval, p.assembler().Assemble(retrieval), nil
}

// AnswerQuestions answers every question against docPath, writing the answers
// file and echoing the visible questions to the console.
func (p *Pipeline) AnswerQuestions(ctx context.Context, docPath string, questions []models.Question) ([]models.PromptResponse, error) {
	runID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("run", runID).Str("doc", docPath).Logger()

	idx, retriever, err := p.Prepare(ctx, docPath)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	if err := p.generator.ResetTranscripts(); err != nil {
		return nil, err
	}
	answers, err := os.Create(p.cfg.Paths.AnswersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create answers file: %w", err)
	}
	defer answers.Close()

	assembler := p.assembler()
	responses := make([]models.PromptResponse, 0, len(questions))
	visible := 0
	for i, q := range questions {
		retrieval, err := retriever.Retrieve(ctx, q.Text)
		if err != nil {
			return responses, err
		}
		pair := assembler.Assemble(retrieval)
		resp := p.answer(ctx, q.Text, pair)
		responses = append(responses, resp)

		logger.Info().
			Int("question", i+1).
			Bool("hidden", q.Hidden).
			Str("modality", resp.Modality).
			Bool("fallback", resp.Fallback).
			Int("images", len(pair.ImagePaths)).
			Msg("Answered")

		if _, err := fmt.Fprintf(answers, models.AnswerBlockTemplate, i+1, q.Text, resp.Content); err != nil {
			return responses, fmt.Errorf("failed to write answer: %w", err)
		}
		if !q.Hidden {
			visible++
			fmt.Fprintf(p.console, models.AnswerBlockTemplate, visible, q.Text, resp.Content)
		}
	}
	logger.Info().Int("questions", len(questions)).Str("file", p.cfg.Paths.AnswersFile).Msg("Answers written")
	return responses, nil
}

// answer tries the multimodal model first when the prompt pair has one and
// falls back to the text model on failure. A text model failure becomes the answer.
func (p *Pipeline) answer(ctx context.Context, question string, pair models.PromptPair) models.PromptResponse {
	resp := models.PromptResponse{Query: question}
	if pair.HasMultimodal {
		out, err := p.generator.Generate(ctx, pair.Multimodal, llmservice.ModalityMultimodal)
		if err == nil && models.IsBlank(out) {
			err = fmt.Errorf("%w: empty multimodal answer", models.ErrGenerationFailure)
		}
		if err == nil {
			resp.Modality, resp.Content = string(llmservice.ModalityMultimodal), out
			return resp
		}
		log.Warn().Err(err).Str("question", question).Msg("Multimodal generation failed")
		if !p.cfg.Generation.Fallback() {
			resp.Modality, resp.Content = string(llmservice.ModalityMultimodal), errorAnswer(err)
			return resp
		}
		resp.Fallback = true
	}

	resp.Modality = string(llmservice.ModalityText)
	out, err := p.generator.Generate(ctx, pair.Text, llmservice.ModalityText)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Text generation failed")
		resp.Content = errorAnswer(err)
		return resp
	}
	resp.Content = out
	return resp
}

func errorAnswer(err error) string {
	return fmt.Sprintf("Error: %v", err)
}
