package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"patent-rag/internal/models"
)

type questionState struct {
	hidden    bool
	hiddenAt  int
	questions []models.Question
}

// LoadQuestions reads one question per line from filePath
func LoadQuestions(filePath string) ([]models.Question, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()
	return ParseQuestions(f)
}

// ParseQuestions skips blank lines. Lines between the hidden markers are kept
// but flagged so they are answered without being echoed.
func ParseQuestions(r io.Reader) ([]models.Question, error) {
	var state questionState
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == models.HiddenStartMarker:
			state.hidden = true
			state.hiddenAt = lineNum
		case line == models.HiddenEndMarker:
			if !state.hidden {
				log.Warn().Int("line", lineNum).Msg("Hidden end marker without start marker")
			}
			state.hidden = false
		default:
			state.questions = append(state.questions, models.Question{Text: line, Hidden: state.hidden})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	if state.hidden {
		log.Warn().Int("line", state.hiddenAt).Msg("Hidden region is not closed, it runs to the end of the file")
	}
	return state.questions, nil
}
