package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"patent-rag/internal/models"
)

// PageReader gives access to the native text of each page of a document.
type PageReader interface {
	NumPages() int
	PageText(page int) (string, error)
	Close() error
}

// PDFReader reads native page text with ledongthuc/pdf
type PDFReader struct {
	file   *os.File
	reader *pdf.Reader
}

// OpenPDF opens the pdf at filePath
func OpenPDF(filePath string) (PageReader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &PDFReader{file: f, reader: reader}, nil
}

func (r *PDFReader) NumPages() int {
	return r.reader.NumPage()
}

// PageText returns the plain text of a 1-based page. Malformed content streams
// can make the pdf package panic, which is reported as an error instead.
func (r *PDFReader) PageText(page int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("failed to read page %d: %v", page, rec)
		}
	}()
	p := r.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (r *PDFReader) Close() error {
	return r.file.Close()
}

// Extractor turns every page of a document into at most one chunk
type Extractor struct {
	open       func(path string) (PageReader, error)
	classifier *Classifier
	progress   io.Writer
}

type ExtractorOption func(*Extractor)

// WithPageOpener replaces the pdf opener
func WithPageOpener(open func(path string) (PageReader, error)) ExtractorOption {
	return func(e *Extractor) {
		e.open = open
	}
}

// WithProgress draws a progress bar on w while pages are classified
func WithProgress(w io.Writer) ExtractorOption {
	return func(e *Extractor) {
		e.progress = w
	}
}

func NewExtractor(classifier *Classifier, opts ...ExtractorOption) *Extractor {
	e := &Extractor{open: OpenPDF, classifier: classifier}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractDocument classifies the pages of filePath in order. Page level
// failures are logged and the page is skipped.
func (e *Extractor) ExtractDocument(ctx context.Context, filePath string) ([]models.Chunk, error) {
	reader, err := e.open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", filePath, err)
	}
	defer reader.Close()

	numPages := reader.NumPages()
	log.Info().Str("doc", filePath).Int("pages", numPages).Msg("Extracting document")
	bar := e.newBar(numPages)

	var chunks []models.Chunk
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageText, err := reader.PageText(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Native text extraction failed, falling back to OCR")
			pageText = ""
		}

		chunk, err := e.classifier.Classify(ctx, Page{DocPath: filePath, Number: i, Text: pageText})
		switch {
		case err != nil:
			log.Error().Err(err).Int("page", i).Msg("Skipping page")
		case chunk == nil:
			log.Debug().Int("page", i).Msg("No content on page")
		default:
			chunks = append(chunks, chunk)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	sort.SliceStable(chunks, func(a, b int) bool {
		return chunks[a].PageNumber() < chunks[b].PageNumber()
	})

	text, images := models.CountKinds(chunks)
	log.Info().Int("text_chunks", text).Int("image_chunks", images).Msg("Extraction complete")
	return chunks, nil
}

func (e *Extractor) newBar(total int) *progressbar.ProgressBar {
	if e.progress == nil || total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(e.progress),
		progressbar.OptionSetDescription("classifying pages"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
