package llmservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patent-rag/internal/config"
	"patent-rag/internal/models"
)

type runCall struct {
	stdin string
	name  string
	args  []string
}

type fakeRunner struct {
	output string
	err    error
	block  bool
	calls  []runCall
}

func (f *fakeRunner) Run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, runCall{stdin: stdin, name: name, args: args})
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return []byte(f.output), f.err
}

func newTestDispatcher(t *testing.T, runner *fakeRunner) (*Dispatcher, *config.PathsConfig) {
	t.Helper()
	dir := t.TempDir()
	paths := &config.PathsConfig{
		TextTranscript:       filepath.Join(dir, "prompts_text.txt"),
		MultimodalTranscript: filepath.Join(dir, "prompts_multimodal.txt"),
	}
	gen := &config.GenerationConfig{
		TextCommand:       []string{"ollama", "run", "llama3.2"},
		MultimodalCommand: []string{"ollama", "run", "llava"},
		TextTimeout:       50 * time.Millisecond,
		MultimodalTimeout: 50 * time.Millisecond,
		MaxChars:          300,
	}
	return NewDispatcher(runner, gen, paths), paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGenerate(t *testing.T) {
	runner := &fakeRunner{output: "**The spring** holds the lid.\n\n- item one\n- item two\n"}
	d, paths := newTestDispatcher(t, runner)

	got, err := d.Generate(context.Background(), "PROMPT", ModalityMultimodal)
	require.NoError(t, err)
	assert.Equal(t, "The spring holds the lid.\nitem one\nitem two", got)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, runCall{stdin: "PROMPT", name: "ollama", args: []string{"run", "llava"}}, runner.calls[0])
	assert.Equal(t, "=== Prompt 1 ===\nPROMPT\n\n", readFile(t, paths.MultimodalTranscript))
	assert.NoFileExists(t, paths.TextTranscript)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		modality Modality
		want     error
	}{
		{"timeout", &fakeRunner{block: true}, ModalityText, models.ErrGenerationTimeout},
		{"non-zero exit", &fakeRunner{err: errors.New("ollama exited with code 1: model not found")}, ModalityText, models.ErrGenerationFailure},
		{"unknown modality", &fakeRunner{}, Modality("audio"), models.ErrGenerationFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t, tt.runner)
			_, err := d.Generate(context.Background(), "PROMPT", tt.modality)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerateParentCancelled(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeRunner{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Generate(ctx, "PROMPT", ModalityText)
	assert.ErrorIs(t, err, models.ErrGenerationFailure)
	assert.NotErrorIs(t, err, models.ErrGenerationTimeout)
}

func TestGenerateNoCommand(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, &config.GenerationConfig{TextTimeout: time.Second}, &config.PathsConfig{})
	_, err := d.Generate(context.Background(), "PROMPT", ModalityText)
	assert.ErrorIs(t, err, models.ErrGenerationFailure)
}

func TestTranscripts(t *testing.T) {
	d, paths := newTestDispatcher(t, &fakeRunner{output: "ok"})
	ctx := context.Background()

	for _, p := range []string{"first", "second"} {
		_, err := d.Generate(ctx, p, ModalityText)
		require.NoError(t, err)
	}
	assert.Equal(t, "=== Prompt 1 ===\nfirst\n\n=== Prompt 2 ===\nsecond\n\n", readFile(t, paths.TextTranscript))

	require.NoError(t, d.ResetTranscripts())
	assert.Empty(t, readFile(t, paths.TextTranscript))
	assert.Empty(t, readFile(t, paths.MultimodalTranscript))

	_, err := d.Generate(ctx, "third", ModalityText)
	require.NoError(t, err)
	assert.Equal(t, "=== Prompt 1 ===\nthird\n\n", readFile(t, paths.TextTranscript))
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "short answer", 300, "short answer"},
		{"trimmed", "  padded  ", 300, "padded"},
		{"mid word", "hello world foo", 8, "hello..."},
		{"at boundary", "hello world foo", 11, "hello world..."},
		{"single long word", "abcdefghij", 4, "abcd..."},
		{"no whitespace in limit", strings.Repeat("x", 400), 300, strings.Repeat("x", 300) + "..."},
		{"runes not bytes", "日本語 テキスト", 5, "日本語..."},
		{"exact length", "hello", 5, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateWords(tt.in, tt.max))
		})
	}
}

func TestGenerateTruncates(t *testing.T) {
	long := ""
	for range 100 {
		long += "word "
	}
	d, _ := newTestDispatcher(t, &fakeRunner{output: long})
	got, err := d.Generate(context.Background(), "PROMPT", ModalityText)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(got)), 303)
	assert.True(t, len(got) > 3 && got[len(got)-3:] == "...")
}
