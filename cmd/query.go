package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"patent-rag/internal/helper"
	"patent-rag/internal/models"
	"patent-rag/internal/pipeline"
	"patent-rag/internal/rag"
)

var (
	queryFile string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question...]",
	Short: "Show the retrieved context and prompts for a question",
	Long: `Retrieves the text and figure evidence for one question and prints both
assembled prompts without calling a model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryFile, "file", "f", "", "PDF path")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the retrieval as JSON")
	_ = queryCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	docs, err := pipeline.ExpandInputs(queryFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	retrieval, pair, err := a.pipeline.Query(ctx, docs[0], strings.Join(args, " "))
	if err != nil {
		return err
	}
	if queryJSON {
		helper.PrettyPrint(retrieval)
		return nil
	}
	printRetrieval(cmd, retrieval, pair)
	return nil
}

func printRetrieval(cmd *cobra.Command, r *rag.Retrieval, pair models.PromptPair) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Text hits:")
	for _, h := range r.TextHits {
		fmt.Fprintf(out, "  [page %d] %.3f\n", h.Page, h.Score)
	}
	fmt.Fprintln(out, "Images:")
	for _, img := range r.Images {
		fmt.Fprintf(out, "  [page %d] %.3f %s\n", img.Page, img.Score, img.ImagePath)
	}
	for _, w := range pair.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}

	fmt.Fprintf(out, "\n--- text prompt (%d/%d context bytes) ---\n%s\n", pair.TextUsed, pair.TextBudget, pair.Text)
	if pair.HasMultimodal {
		fmt.Fprintf(out, "\n--- multimodal prompt (%d/%d context bytes) ---\n%s\n", pair.MultimodalUsed, pair.MultimodalBudget, pair.Multimodal)
	}
}
