package llmservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/config"
	"patent-rag/internal/helper"
	"patent-rag/internal/models"
)

type Modality string

const (
	ModalityText       Modality = "text"
	ModalityMultimodal Modality = "multimodal"
)

type backend struct {
	command    []string
	timeout    time.Duration
	transcript string
}

// Dispatcher sends prompts to external model processes
type Dispatcher struct {
	runner   helper.CommandRunner
	backends map[Modality]backend
	maxChars int
	seq      map[Modality]int
}

func NewDispatcher(runner helper.CommandRunner, gen *config.GenerationConfig, paths *config.PathsConfig) *Dispatcher {
	return &Dispatcher{
		runner: runner,
		backends: map[Modality]backend{
			ModalityText: {
				command:    gen.TextCommand,
				timeout:    gen.TextTimeout,
				transcript: paths.TextTranscript,
			},
			ModalityMultimodal: {
				command:    gen.MultimodalCommand,
				timeout:    gen.MultimodalTimeout,
				transcript: paths.MultimodalTranscript,
			},
		},
		maxChars: gen.MaxChars,
		seq:      map[Modality]int{},
	}
}

// ResetTranscripts truncates both transcript files
func (d *Dispatcher) ResetTranscripts() error {
	for modality, b := range d.backends {
		d.seq[modality] = 0
		if b.transcript == "" {
			continue
		}
		if err := os.WriteFile(b.transcript, nil, 0o644); err != nil {
			return fmt.Errorf("failed to reset %s transcript: %w", modality, err)
		}
	}
	return nil
}

// Generate runs the model for modality with prompt on stdin and returns its
// answer as plain text, cut to the configured number of characters.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, modality Modality) (string, error) {
	b, ok := d.backends[modality]
	if !ok {
		return "", fmt.Errorf("%w: unknown modality %q", models.ErrGenerationFailure, modality)
	}
	if len(b.command) == 0 {
		return "", fmt.Errorf("%w: no %s command configured", models.ErrGenerationFailure, modality)
	}

	d.seq[modality]++
	if err := d.appendTranscript(b.transcript, d.seq[modality], prompt); err != nil {
		log.Warn().Err(err).Str("modality", string(modality)).Msg("Failed to write transcript")
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	out, err := d.runner.Run(callCtx, prompt, b.command[0], b.command[1:]...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %s model after %s: %w", models.ErrGenerationTimeout, modality, b.timeout, err)
		}
		return "", fmt.Errorf("%w: %s model: %w", models.ErrGenerationFailure, modality, err)
	}
	log.Debug().
		Str("modality", string(modality)).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(out)).
		Msg("Model responded")

	return TruncateWords(FlattenMarkdown(string(out)), d.maxChars), nil
}

func (d *Dispatcher) appendTranscript(path string, n int, prompt string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, models.TranscriptBlockTemplate, n, prompt)
	return err
}

// TruncateWords limits s to maxChars runes, cutting back to the last word
// boundary and appending an ellipsis when anything was removed. When the first
// maxChars runes hold no whitespace the word itself is cut at maxChars.
func TruncateWords(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if maxChars <= 0 || len(runes) <= maxChars {
		return s
	}
	cut := runes[:maxChars]
	if !unicode.IsSpace(runes[maxChars]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + models.TruncationEllipsis
}
