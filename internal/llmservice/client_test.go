package llmservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"patent-rag/internal/config"
	"patent-rag/internal/models"
)

type fakeModel struct {
	response *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.response, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc_page_2.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func TestImageDescriber(t *testing.T) {
	model := &fakeModel{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "FIG. 2 shows a hinged lid 10."}},
	}}
	path := writeImage(t)

	got, err := NewImageDescriber(model).Describe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "FIG. 2 shows a hinged lid 10.", got)

	require.Len(t, model.messages, 1)
	msg := model.messages[0]
	assert.Equal(t, llms.ChatMessageTypeHuman, msg.Role)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, llms.TextContent{Text: models.DescribeImagePrompt}, msg.Parts[0])
	assert.Equal(t, llms.BinaryContent{MIMEType: "image/png", Data: []byte("png-bytes")}, msg.Parts[1])
}

func TestImageDescriberErrors(t *testing.T) {
	t.Run("missing image", func(t *testing.T) {
		_, err := NewImageDescriber(&fakeModel{}).Describe(context.Background(), filepath.Join(t.TempDir(), "none.png"))
		assert.Error(t, err)
	})
	t.Run("model error", func(t *testing.T) {
		_, err := NewImageDescriber(&fakeModel{err: errors.New("boom")}).Describe(context.Background(), writeImage(t))
		assert.EqualError(t, err, "boom")
	})
	t.Run("no choices", func(t *testing.T) {
		_, err := NewImageDescriber(&fakeModel{response: &llms.ContentResponse{}}).Describe(context.Background(), writeImage(t))
		assert.Error(t, err)
	})
}

func TestNewVisionModelUnknownProvider(t *testing.T) {
	_, err := NewVisionModel(&config.LLMConfig{Provider: "bedrock"})
	assert.ErrorContains(t, err, "unsupported vision provider")
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", mimeType("a/b.PNG"))
	assert.Equal(t, "image/jpeg", mimeType("a/b.jpeg"))
	assert.Equal(t, "image/png", mimeType("noext"))
}
