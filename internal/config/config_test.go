package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 2, cfg.RAG.ImageLimit())
	assert.Equal(t, 2000, cfg.RAG.MaxBytes)
	assert.Equal(t, 50, cfg.RAG.PartialMin())
	assert.InDelta(t, 1.0, cfg.Extract.Blur(), 1e-9)
	assert.Equal(t, 60*time.Second, cfg.Generation.TextTimeout)
	assert.Equal(t, 120*time.Second, cfg.Generation.MultimodalTimeout)
	assert.Equal(t, 300, cfg.Generation.MaxChars)
	assert.True(t, cfg.Generation.Fallback())
	assert.Equal(t, "chunks_metadata.json", cfg.Paths.MetadataFile)
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := writeConfig(t, `
rag:
  top_k: 5
  max_bytes: 4096
generation:
  text_command: ["my-model", "--quiet"]
  text_timeout: 10s
  fallback_to_text: false
extract:
  ocr_dpi: 400
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 4096, cfg.RAG.MaxBytes)
	assert.Equal(t, []string{"my-model", "--quiet"}, cfg.Generation.TextCommand)
	assert.Equal(t, 10*time.Second, cfg.Generation.TextTimeout)
	assert.False(t, cfg.Generation.Fallback())
	assert.Equal(t, 400, cfg.Extract.OCRDPI)
	assert.Equal(t, 150, cfg.Extract.ImageDPI)
}

func TestLoadConfig_ExplicitZeros(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
rag:
  max_images: 0
  partial_min_bytes: 0
extract:
  blur_sigma: 0
generation:
  text_timeout: 0s
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RAG.ImageLimit())
	assert.Equal(t, 0, cfg.RAG.PartialMin())
	assert.Zero(t, cfg.Extract.Blur())
	assert.Equal(t, 60*time.Second, cfg.Generation.TextTimeout, "a zero timeout takes the default")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "store:\n  driver: mongo\n", "unsupported store.driver"},
		{"postgres without dsn", "store:\n  driver: postgres\n", "store.dsn is required"},
		{"unknown provider", "embed_llm:\n  provider: cohere\n", "unsupported embed_llm.provider"},
		{"negative images", "rag:\n  max_images: -1\n", "rag.max_images"},
		{"negative partial", "rag:\n  partial_min_bytes: -5\n", "rag.partial_min_bytes"},
		{"negative blur", "extract:\n  blur_sigma: -1\n", "extract.blur_sigma"},
		{"negative timeout", "generation:\n  multimodal_timeout: -1s\n", "generation timeouts must be positive"},
		{"short export key", "index:\n  export_path: out.gob\n  encryption_key: short\n", "encryption_key must be 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "rag: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
