package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"patent-rag/internal/config"
)

const defaultConfigPath = "./configs/config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "patent-rag",
	Short: "Answer questions about patent PDFs",
	Long: `Classifies the pages of a patent PDF into prose and figure sheets,
indexes them and answers questions with byte budgeted text and multimodal prompts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	log.Debug().Str("file", configPath).Interface("rag", cfg.RAG).Msg("Loaded config")
	return cfg, nil
}
