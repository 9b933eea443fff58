package models

import (
	"fmt"
	"strings"
)

// ChunkKind tags the variant of a Chunk.
type ChunkKind string

const (
	KindText             ChunkKind = "text"
	KindImageDescription ChunkKind = "image_description"
)

// Chunk is one classified unit of page-level evidence.
// Only TextChunk and ImageChunk implement it.
type Chunk interface {
	Kind() ChunkKind
	PageNumber() int
	// Text is the content that gets embedded and shown to the model.
	Text() string
	sealed()
}

// TextChunk holds prose extracted natively or through OCR.
type TextChunk struct {
	Page    int
	Content string
}

func (c TextChunk) Kind() ChunkKind { return KindText }
func (c TextChunk) PageNumber() int { return c.Page }
func (c TextChunk) Text() string    { return c.Content }
func (TextChunk) sealed()           {}

// ImageChunk holds the generated description of a rendered figure sheet.
type ImageChunk struct {
	Page        int
	Description string
	ImagePath   string
}

func (c ImageChunk) Kind() ChunkKind { return KindImageDescription }
func (c ImageChunk) PageNumber() int { return c.Page }
func (c ImageChunk) Text() string    { return c.Description }
func (ImageChunk) sealed()           {}

// ChunkRecord is the persisted form of a Chunk
type ChunkRecord struct {
	Kind      ChunkKind `json:"kind"`
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	ImagePath string    `json:"image_path,omitempty"`
}

// DocumentChunks is the ordered chunk list of one document
type DocumentChunks struct {
	Chunks []ChunkRecord `json:"chunks"`
}

// Metadata maps a document path to its chunks
type Metadata map[string]DocumentChunks

// ToRecord converts a chunk into its persisted form
func ToRecord(c Chunk) ChunkRecord {
	switch v := c.(type) {
	case ImageChunk:
		return ChunkRecord{Kind: KindImageDescription, Page: v.Page, Content: v.Description, ImagePath: v.ImagePath}
	default:
		return ChunkRecord{Kind: KindText, Page: c.PageNumber(), Content: c.Text()}
	}
}

// FromRecord converts a persisted record back into a chunk
func FromRecord(r ChunkRecord) (Chunk, error) {
	if r.Page < 1 {
		return nil, fmt.Errorf("%w: page %d must be >= 1", ErrInvalidChunk, r.Page)
	}
	switch r.Kind {
	case KindText:
		return TextChunk{Page: r.Page, Content: r.Content}, nil
	case KindImageDescription:
		return ImageChunk{Page: r.Page, Description: r.Content, ImagePath: r.ImagePath}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidChunk, r.Kind)
	}
}

// ToRecords converts chunks in order
func ToRecords(chunks []Chunk) []ChunkRecord {
	records := make([]ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, ToRecord(c))
	}
	return records
}

// FromRecords converts records in order, failing on the first invalid one
func FromRecords(records []ChunkRecord) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(records))
	for i, r := range records {
		c, err := FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// CountKinds returns the number of text and image chunks
func CountKinds(chunks []Chunk) (text, images int) {
	for _, c := range chunks {
		if c.Kind() == KindImageDescription {
			images++
		} else {
			text++
		}
	}
	return text, images
}

// Question is one line of the question file
type Question struct {
	Text   string
	Hidden bool
}

// PromptResponse is the answer produced for one question
type PromptResponse struct {
	Query    string
	Modality string
	Content  string
	Fallback bool
}

// IsBlank reports whether s has no visible content
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// PromptPair holds the two prompt variants assembled for one question.
// Multimodal is empty and HasMultimodal false when no images were selected.
type PromptPair struct {
	Text             string
	Multimodal       string
	HasMultimodal    bool
	ImagePaths       []string
	TextBudget       int
	TextUsed         int
	MultimodalBudget int
	MultimodalUsed   int
	Warnings         []string
}
