// Package cmd defines the carebot CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carebot",
	Short: "Carebot - healthcare chat assistant API",
	Long: `Carebot is a retrieval-augmented healthcare chat assistant.

It serves a REST API for conversations and knowledge-base documents,
retrieves relevant reference chunks with pgvector, and answers through an
external LLM provider (OpenAI or Gemini) with a small healthcare tool set.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
