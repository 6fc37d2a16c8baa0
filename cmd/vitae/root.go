package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "vitae",
	Short: "Answer questions about one person's professional history",
	Long: `vitae indexes a directory of resume and supporting documents and answers
natural-language questions about them, grounded in the indexed text.

The server exposes the engine over HTTP and, with --mcp, over MCP stdio
so assistants and editors can call it as a tool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: $VITAE_CONFIG or ~/.config/vitae/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
