package models

const (
	SheetRegex         = `(?i)\bsheet\s+(\d+)\s+of\s+(\d+)\b`
	HiddenStartMarker  = "[[HIDDEN]]"
	HiddenEndMarker    = "[[/HIDDEN]]"
	ContextSeparator   = "\n\n"
	TruncationEllipsis = "..."
)

var (
	DescribeImagePrompt = `This image is a figure sheet from a patent document.
Describe what the figures show: the components, their reference numerals, labels and how they relate to each other.
Answer with a plain-text description only.`

	PromptPreamble = "You are an expert patent analyst. Answer the question using only the context below. Be concise.\n\n"

	TextSectionTemplate     = "## Retrieved text (%d/%d bytes)\n%s\n"
	CaptionSectionTemplate  = "## Figure descriptions (%d bytes)\n%s\n"
	ImageSectionTemplate    = "## Figure images (%d bytes)\n%s\n"
	QuestionSectionTemplate = "## Question (%d bytes)\n%s\n\nAnswer:"

	PageSegmentTemplate     = "[Page %d] %s"
	CaptionBlockTemplate    = "[Figure sheet, page %d]\n%s"
	TranscriptBlockTemplate = "=== Prompt %d ===\n%s\n\n"
	AnswerBlockTemplate     = "Question %d: %s\n%s\n\n"
)
