package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Store      StoreConfig      `yaml:"store"`
	Extract    ExtractConfig    `yaml:"extract"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	VisionLLM  LLMConfig        `yaml:"vision_llm"`
	Index      IndexConfig      `yaml:"index"`
	RAG        RAGConfig        `yaml:"rag"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

type PathsConfig struct {
	MetadataFile         string `yaml:"metadata_file"`
	ImageDir             string `yaml:"image_dir"`
	QuestionsFile        string `yaml:"questions_file"`
	AnswersFile          string `yaml:"answers_file"`
	TextTranscript       string `yaml:"text_transcript"`
	MultimodalTranscript string `yaml:"multimodal_transcript"`
}

// StoreConfig selects the chunk metadata backend ("json" or "postgres")
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// ExtractConfig controls rendering and OCR. A nil BlurSigma means the default; 0 disables the blur.
type ExtractConfig struct {
	ImageDPI    int      `yaml:"image_dpi"`
	OCRDPI      int      `yaml:"ocr_dpi"`
	BlurSigma   *float64 `yaml:"blur_sigma"`
	RenderCmd   string   `yaml:"render_cmd"`
	OCRCmd      string   `yaml:"ocr_cmd"`
	OCRLanguage string   `yaml:"ocr_language"`
	Progress    bool     `yaml:"progress"`
}

// LLMConfig describes a langchaingo backed model ("ollama" or "openai")
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Key       string `yaml:"key"`
	BatchSize int    `yaml:"batch_size"`
}

type IndexConfig struct {
	Collection    string `yaml:"collection"`
	PersistDir    string `yaml:"persist_dir"`
	Compress      bool   `yaml:"compress"`
	ExportPath    string `yaml:"export_path"`
	EncryptionKey string `yaml:"encryption_key"`
}

// RAGConfig sizes retrieval and the prompt budget. MaxImages and PartialMinBytes
// accept an explicit 0, so they are pointers and nil means the default.
type RAGConfig struct {
	TopK            int  `yaml:"top_k"`
	MaxImages       *int `yaml:"max_images"`
	MaxBytes        int  `yaml:"max_bytes"`
	PartialMinBytes *int `yaml:"partial_min_bytes"`
}

type GenerationConfig struct {
	TextCommand       []string      `yaml:"text_command"`
	MultimodalCommand []string      `yaml:"multimodal_command"`
	TextTimeout       time.Duration `yaml:"text_timeout"`
	MultimodalTimeout time.Duration `yaml:"multimodal_timeout"`
	MaxChars          int           `yaml:"max_chars"`
	FallbackToText    *bool         `yaml:"fallback_to_text"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultImageDPI          = 150
	defaultOCRDPI            = 300
	defaultBlurSigma         = 1.0
	defaultTopK              = 3
	defaultMaxImages         = 2
	defaultMaxBytes          = 2000
	defaultPartialMinBytes   = 50
	defaultMaxChars          = 300
	defaultTextTimeout       = 60 * time.Second
	defaultMultimodalTimeout = 120 * time.Second
	defaultBatchSize         = 16
)

// LoadConfig reads the yaml file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset value. For plain fields, including the
// generation timeouts, 0 means unset and takes the default.
func (c *Config) ApplyDefaults() {
	setString(&c.Paths.MetadataFile, "chunks_metadata.json")
	setString(&c.Paths.ImageDir, "extracted_images")
	setString(&c.Paths.QuestionsFile, "questions.txt")
	setString(&c.Paths.AnswersFile, "answers.txt")
	setString(&c.Paths.TextTranscript, "prompts_text.txt")
	setString(&c.Paths.MultimodalTranscript, "prompts_multimodal.txt")

	setString(&c.Store.Driver, "json")

	setInt(&c.Extract.ImageDPI, defaultImageDPI)
	setInt(&c.Extract.OCRDPI, defaultOCRDPI)
	if c.Extract.BlurSigma == nil {
		sigma := defaultBlurSigma
		c.Extract.BlurSigma = &sigma
	}
	setString(&c.Extract.RenderCmd, "pdftoppm")
	setString(&c.Extract.OCRCmd, "tesseract")
	setString(&c.Extract.OCRLanguage, "eng")

	setString(&c.EmbedLLM.Provider, "ollama")
	setString(&c.EmbedLLM.BaseURL, "http://localhost:11434")
	setString(&c.EmbedLLM.Model, "all-minilm")
	setInt(&c.EmbedLLM.BatchSize, defaultBatchSize)
	setString(&c.VisionLLM.Provider, "ollama")
	setString(&c.VisionLLM.BaseURL, "http://localhost:11434")
	setString(&c.VisionLLM.Model, "llava")
	if c.EmbedLLM.Provider == "openai" {
		setString(&c.EmbedLLM.Key, os.Getenv("OPENAI_API_KEY"))
	}
	if c.VisionLLM.Provider == "openai" {
		setString(&c.VisionLLM.Key, os.Getenv("OPENAI_API_KEY"))
	}

	setString(&c.Index.Collection, "patent_chunks")

	setInt(&c.RAG.TopK, defaultTopK)
	setIntPtr(&c.RAG.MaxImages, defaultMaxImages)
	setInt(&c.RAG.MaxBytes, defaultMaxBytes)
	setIntPtr(&c.RAG.PartialMinBytes, defaultPartialMinBytes)

	if len(c.Generation.TextCommand) == 0 {
		c.Generation.TextCommand = []string{"ollama", "run", "llama3.2"}
	}
	if len(c.Generation.MultimodalCommand) == 0 {
		c.Generation.MultimodalCommand = []string{"ollama", "run", "llava"}
	}
	if c.Generation.TextTimeout == 0 {
		c.Generation.TextTimeout = defaultTextTimeout
	}
	if c.Generation.MultimodalTimeout == 0 {
		c.Generation.MultimodalTimeout = defaultMultimodalTimeout
	}
	setInt(&c.Generation.MaxChars, defaultMaxChars)
	if c.Generation.FallbackToText == nil {
		fallback := true
		c.Generation.FallbackToText = &fallback
	}

	setString(&c.Log.Level, "info")
}

// Validate rejects values the pipeline cannot work with
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "json":
	case "postgres":
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported store.driver %q", c.Store.Driver))
	}
	if !knownProvider(c.EmbedLLM.Provider) {
		problems = append(problems, fmt.Sprintf("unsupported embed_llm.provider %q", c.EmbedLLM.Provider))
	}
	if !knownProvider(c.VisionLLM.Provider) {
		problems = append(problems, fmt.Sprintf("unsupported vision_llm.provider %q", c.VisionLLM.Provider))
	}
	if c.RAG.TopK < 1 {
		problems = append(problems, "rag.top_k must be >= 1")
	}
	if c.RAG.ImageLimit() < 0 {
		problems = append(problems, "rag.max_images must be >= 0")
	}
	if c.RAG.MaxBytes < 1 {
		problems = append(problems, "rag.max_bytes must be >= 1")
	}
	if c.RAG.PartialMin() < 0 {
		problems = append(problems, "rag.partial_min_bytes must be >= 0")
	}
	if c.Extract.Blur() < 0 {
		problems = append(problems, "extract.blur_sigma must be >= 0")
	}
	if c.Generation.TextTimeout <= 0 || c.Generation.MultimodalTimeout <= 0 {
		problems = append(problems, "generation timeouts must be positive")
	}
	if c.Generation.MaxChars < 1 {
		problems = append(problems, "generation.max_chars must be >= 1")
	}
	// chromem encrypts exports with AES-256
	if c.Index.ExportPath != "" && len(c.Index.EncryptionKey) != 32 {
		problems = append(problems, "index.encryption_key must be 32 bytes with index.export_path")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Fallback reports whether a failed multimodal call retries with the text model
func (g GenerationConfig) Fallback() bool {
	return g.FallbackToText == nil || *g.FallbackToText
}

// ImageLimit is the number of figure sheets kept per question
func (r RAGConfig) ImageLimit() int {
	if r.MaxImages == nil {
		return defaultMaxImages
	}
	return *r.MaxImages
}

// PartialMin is the smallest remaining budget worth a truncated segment
func (r RAGConfig) PartialMin() int {
	if r.PartialMinBytes == nil {
		return defaultPartialMinBytes
	}
	return *r.PartialMinBytes
}

func (e ExtractConfig) Blur() float64 {
	if e.BlurSigma == nil {
		return defaultBlurSigma
	}
	return *e.BlurSigma
}

func knownProvider(p string) bool {
	return p == "ollama" || p == "openai"
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setIntPtr(dst **int, v int) {
	if *dst == nil {
		*dst = &v
	}
}
