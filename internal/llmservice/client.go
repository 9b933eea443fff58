package llmservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"patent-rag/internal/config"
	"patent-rag/internal/models"
)

// NewVisionModel creates the multimodal model used to describe figure sheets
func NewVisionModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating vision model")
	switch llmConfig.Provider {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", llmConfig.Provider)
	}
}

// GenerateContent calls llm with the given messages
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	res, err := llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return res.Choices[0].Content, nil
}

// ImageDescriber describes rendered pages with a multimodal model
type ImageDescriber struct {
	llm    llms.Model
	prompt string
}

func NewImageDescriber(llm llms.Model) *ImageDescriber {
	return &ImageDescriber{llm: llm, prompt: models.DescribeImagePrompt}
}

func (d *ImageDescriber) Describe(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	msgContent := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(d.prompt),
				llms.BinaryPart(mimeType(imagePath), data),
			},
		},
	}
	log.Debug().Str("image", imagePath).Int("bytes", len(data)).Msg("Describing image")
	return GenerateContent(ctx, d.llm, msgContent, llms.WithTemperature(0))
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
