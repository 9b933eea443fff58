package models

import "errors"

var (
	ErrExtraction        = errors.New("extraction error")
	ErrIndex             = errors.New("index error")
	ErrRetrieval         = errors.New("retrieval error")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationFailure = errors.New("generation failed")
	ErrInvalidChunk      = errors.New("invalid chunk")
)
