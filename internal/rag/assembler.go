package rag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/models"
)

// Assembler packs retrieved evidence into byte budgeted prompts
type Assembler struct {
	MaxBytes        int
	PartialMinBytes int
}

func (a Assembler) Assemble(r *Retrieval) models.PromptPair {
	return AssembleContext(r.Question, r.TextHits, r.Images, a.MaxBytes, a.PartialMinBytes)
}

// AssembleContext builds the text prompt and, when images were selected, the
// multimodal prompt. The question and the figure listing of each variant are
// charged against maxBytes first and the retrieved text gets what remains.
func AssembleContext(question string, hits []TextHit, images []ImageHit, maxBytes, partialMin int) models.PromptPair {
	question = strings.ToValidUTF8(question, "")
	sorted := slices.Clone(hits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var pair models.PromptPair
	questionBytes := len(question)

	if len(images) == 0 {
		budget := clampBudget(&pair, "text", maxBytes-questionBytes)
		body := BuildTextContext(sorted, budget, partialMin)
		pair.Text = renderPrompt(body, budget, "", question)
		pair.TextBudget, pair.TextUsed = budget, len(body)
		return pair
	}

	paths := make([]string, 0, len(images))
	captions := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, strings.ToValidUTF8(img.ImagePath, ""))
		captions = append(captions, fmt.Sprintf(models.CaptionBlockTemplate, img.Page, strings.ToValidUTF8(img.Description, "")))
	}
	pathListing := strings.Join(paths, "\n")
	captionListing := strings.Join(captions, models.ContextSeparator)

	mmBudget := clampBudget(&pair, "multimodal", maxBytes-questionBytes-len(pathListing))
	mmBody := BuildTextContext(sorted, mmBudget, partialMin)
	pair.Multimodal = renderPrompt(mmBody, mmBudget, fmt.Sprintf(models.ImageSectionTemplate, len(pathListing), pathListing), question)
	pair.HasMultimodal = true
	pair.ImagePaths = paths
	pair.MultimodalBudget, pair.MultimodalUsed = mmBudget, len(mmBody)

	textBudget := clampBudget(&pair, "text", maxBytes-questionBytes-len(captionListing))
	textBody := BuildTextContext(sorted, textBudget, partialMin)
	pair.Text = renderPrompt(textBody, textBudget, fmt.Sprintf(models.CaptionSectionTemplate, len(captionListing), captionListing), question)
	pair.TextBudget, pair.TextUsed = textBudget, len(textBody)
	return pair
}

func renderPrompt(body string, budget int, figures, question string) string {
	var b strings.Builder
	b.WriteString(models.PromptPreamble)
	fmt.Fprintf(&b, models.TextSectionTemplate, len(body), budget, body)
	b.WriteString(figures)
	fmt.Fprintf(&b, models.QuestionSectionTemplate, len(question), question)
	return b.String()
}

// clampBudget records a warning and returns 0 when nothing is left for context
func clampBudget(pair *models.PromptPair, variant string, budget int) int {
	if budget > 0 {
		return budget
	}
	msg := fmt.Sprintf("%s prompt: question and figure listing leave no room for context (%d bytes)", variant, budget)
	log.Warn().Str("variant", variant).Int("budget", budget).Msg("Byte budget exhausted, context section left empty")
	pair.Warnings = append(pair.Warnings, msg)
	return 0
}

// BuildTextContext concatenates "[Page N] content" segments, each followed by
// a blank line, until the next one would exceed budget. If more than
// partialMin bytes remain at that point the segment is cut to fit.
func BuildTextContext(hits []TextHit, budget, partialMin int) string {
	if budget <= 0 {
		return ""
	}
	var b strings.Builder
	for _, h := range hits {
		segment := fmt.Sprintf(models.PageSegmentTemplate, h.Page, strings.ToValidUTF8(h.Content, "")) + models.ContextSeparator
		if b.Len()+len(segment) <= budget {
			b.WriteString(segment)
			continue
		}
		if remaining := budget - b.Len(); remaining > partialMin {
			b.WriteString(TruncateUTF8(segment, remaining))
		}
		break
	}
	return b.String()
}

// TruncateUTF8 cuts s to at most n bytes without splitting a rune
func TruncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
