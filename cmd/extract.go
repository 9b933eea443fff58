package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"patent-rag/internal/pipeline"
)

var (
	extractFile   string
	extractForce  bool
	extractDryRun bool
	extractReset  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Classify the pages of patent PDFs into the chunk store",
	Long: `Reads every page of the matched PDFs, classifies it as prose or figure sheet
(using OCR when the page has no text layer) and merges the chunks into the store.
--file accepts a path or a doublestar pattern such as "patents/**/*.pdf".`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "PDF path or glob pattern")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "extract again even if the document is already stored")
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "list the matched documents without extracting")
	extractCmd.Flags().BoolVar(&extractReset, "reset", false, "remove every stored document first")
	_ = extractCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	if extractDryRun {
		docs, err := pipeline.ExpandInputs(extractFile)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Fprintln(cmd.OutOrStdout(), doc)
		}
		return nil
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

	if extractReset {
		if err := a.store.Reset(ctx); err != nil {
			return err
		}
	}
	docs, err := a.pipeline.ExtractAll(ctx, extractFile, extractForce)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d document(s)\n", len(docs))
	return nil
}
