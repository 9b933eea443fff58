package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"patent-rag/internal/parser"
	"patent-rag/internal/pipeline"
)

var (
	answerFile      string
	answerQuestions string
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Answer the questions of a question file",
	Long: `Answers every question of the question file against one patent PDF.
Lines between [[HIDDEN]] and [[/HIDDEN]] are answered and written to the
answers file but not echoed.`,
	Args: cobra.NoArgs,
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().StringVarP(&answerFile, "file", "f", "", "PDF path")
	answerCmd.Flags().StringVarP(&answerQuestions, "questions", "q", "", "question file (default from config)")
	_ = answerCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(answerCmd)
}

func runAnswer(cmd *cobra.Command, _ []string) error {
	docs, err := pipeline.ExpandInputs(answerFile)
	if err != nil {
		return err
	}
	if len(docs) != 1 {
		return fmt.Errorf("answer needs exactly one document, %q matches %d", answerFile, len(docs))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if answerQuestions == "" {
		answerQuestions = cfg.Paths.QuestionsFile
	}
	questions, err := parser.LoadQuestions(answerQuestions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	responses, err := a.pipeline.AnswerQuestions(ctx, docs[0], questions)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Answered %d question(s), see %s\n", len(responses), cfg.Paths.AnswersFile)
	return nil
}
