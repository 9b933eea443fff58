package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/helper"
	"patent-rag/internal/models"
)

var sheetRe = regexp.MustCompile(models.SheetRegex)

// Page is one page of a source document with its native text
type Page struct {
	DocPath string
	Number  int
	Text    string
}

// Renderer rasterises a single pdf page to a png file
type Renderer interface {
	Render(ctx context.Context, pdfPath string, page, dpi int, outPath string) error
}

// OCREngine recognises the text of an image file
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Describer produces a natural-language description of an image file
type Describer interface {
	Describe(ctx context.Context, imagePath string) (string, error)
}

type ClassifierOptions struct {
	ImageDir  string
	ImageDPI  int
	OCRDPI    int
	BlurSigma float64
}

// Classifier decides whether a page is prose or a figure sheet
type Classifier struct {
	renderer   Renderer
	ocr        OCREngine
	describer  Describer
	opts       ClassifierOptions
	preprocess func(src, dst string, sigma float64) error
}

func NewClassifier(renderer Renderer, ocr OCREngine, describer Describer, opts ClassifierOptions) *Classifier {
	if opts.ImageDPI <= 0 {
		opts.ImageDPI = 150
	}
	if opts.OCRDPI <= 0 {
		opts.OCRDPI = 300
	}
	return &Classifier{
		renderer:   renderer,
		ocr:        ocr,
		describer:  describer,
		opts:       opts,
		preprocess: PreprocessForOCR,
	}
}

// IsFigureSheet reports whether text carries a "sheet X of Y" caption
func IsFigureSheet(text string) bool {
	return sheetRe.MatchString(text)
}

// Classify returns the chunk for page, or nil when the page carries nothing
// retrievable. Render, OCR and describe failures are wrapped in ErrExtraction.
func (c *Classifier) Classify(ctx context.Context, page Page) (models.Chunk, error) {
	text := strings.TrimSpace(page.Text)
	if text != "" {
		return c.classifyText(ctx, page, text)
	}

	ocrText, err := c.recognize(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d ocr: %w", models.ErrExtraction, page.Number, err)
	}
	if ocrText == "" {
		return nil, nil
	}
	log.Debug().Int("page", page.Number).Int("bytes", len(ocrText)).Msg("Using OCR text")
	return c.classifyText(ctx, page, ocrText)
}

func (c *Classifier) classifyText(ctx context.Context, page Page, text string) (models.Chunk, error) {
	if !IsFigureSheet(text) {
		return models.TextChunk{Page: page.Number, Content: text}, nil
	}
	chunk, err := c.describePage(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d figure sheet: %w", models.ErrExtraction, page.Number, err)
	}
	return chunk, nil
}

func (c *Classifier) describePage(ctx context.Context, page Page) (models.Chunk, error) {
	if err := helper.CreateFolder(c.opts.ImageDir); err != nil {
		return nil, err
	}
	imagePath := filepath.Join(c.opts.ImageDir, ImageFileName(page.DocPath, page.Number))
	if err := c.renderer.Render(ctx, page.DocPath, page.Number, c.opts.ImageDPI, imagePath); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	description, err := c.describer.Describe(ctx, imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to describe image: %w", err)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("empty description for %s", imagePath)
	}
	log.Debug().Int("page", page.Number).Str("image", imagePath).Msg("Described figure sheet")
	return models.ImageChunk{Page: page.Number, Description: description, ImagePath: imagePath}, nil
}

func (c *Classifier) recognize(ctx context.Context, page Page) (string, error) {
	tmpDir, err := os.MkdirTemp("", "patent-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	raw := filepath.Join(tmpDir, "page.png")
	if err := c.renderer.Render(ctx, page.DocPath, page.Number, c.opts.OCRDPI, raw); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	binary := filepath.Join(tmpDir, "page_bin.png")
	if err := c.preprocess(raw, binary, c.opts.BlurSigma); err != nil {
		return "", fmt.Errorf("failed to preprocess page image: %w", err)
	}
	text, err := c.ocr.Recognize(ctx, binary)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ImageFileName names the rendered image of a figure sheet page
func ImageFileName(docPath string, page int) string {
	return fmt.Sprintf("%s_page_%d.png", helper.DocumentStem(docPath), page)
}
