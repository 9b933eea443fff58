package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"patent-rag/internal/helper"
)

// PopplerRenderer renders pages with pdftoppm
type PopplerRenderer struct {
	runner  helper.CommandRunner
	command string
}

func NewPopplerRenderer(runner helper.CommandRunner, command string) *PopplerRenderer {
	if command == "" {
		command = "pdftoppm"
	}
	return &PopplerRenderer{runner: runner, command: command}
}

func (r *PopplerRenderer) Render(ctx context.Context, pdfPath string, page, dpi int, outPath string) error {
	if !strings.HasSuffix(outPath, ".png") {
		return fmt.Errorf("output path %s must end in .png", outPath)
	}
	// pdftoppm appends the extension itself with -singlefile
	prefix := strings.TrimSuffix(outPath, ".png")
	_, err := r.runner.Run(ctx, "", r.command,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(dpi),
		"-png", "-singlefile",
		pdfPath, prefix,
	)
	return err
}

// TesseractOCR recognises text with the tesseract CLI
type TesseractOCR struct {
	runner   helper.CommandRunner
	command  string
	language string
}

func NewTesseractOCR(runner helper.CommandRunner, command, language string) *TesseractOCR {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{runner: runner, command: command, language: language}
}

func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	out, err := t.runner.Run(ctx, "", t.command, imagePath, "stdout", "-l", t.language)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
