package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaelabs/vitae/internal/config"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Re-index the document directory",
	Long: `Re-index the document directory through the running server.

Examples:
  vitae ingest
  vitae ingest --dir ~/documents/resume`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{}
		if dir != "" {
			req["directory"] = dir
		}

		printStep("Indexing...")
		resp, err := client.post(cmd.Context(), "/v1/ingest", req)
		if err != nil {
			return err
		}

		var report struct {
			DocumentsIndexed int      `json:"documents_indexed"`
			ChunksIndexed    int      `json:"chunks_indexed"`
			Errors           []string `json:"errors"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Indexed %d documents (%d chunks)", report.DocumentsIndexed, report.ChunksIndexed)
		for _, e := range report.Errors {
			printWarning("%s", e)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("dir", "", "directory to index (default: configured docs dir)")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Ask a natural-language question about the indexed documents.

Examples:
  vitae ask "How many years of Go experience?"
  vitae ask what databases has this person worked with`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/query", map[string]any{"query": question})
		if err != nil {
			return err
		}

		var answer struct {
			ResponseText string   `json:"response_text"`
			Confidence   float64  `json:"confidence"`
			Sources      []string `json:"sources"`
			Category     string   `json:"category"`
		}
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Println(answer.ResponseText)
		if len(answer.Sources) > 0 {
			printStatus("Sources", "%s", strings.Join(answer.Sources, ", "))
		}
		conf := fmt.Sprintf("%.2f", answer.Confidence)
		printStatus("Confidence", "%s", colorize(confidenceColor(answer.Confidence), conf))
		return nil
	},
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match <skill>...",
	Short: "Match requested skills against the indexed profile",
	Long: `Match a list of skills against the skills extracted from the documents.

Examples:
  vitae match go postgresql kubernetes
  vitae match "machine learning" python`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/skill-match", map[string]any{"skills": args})
		if err != nil {
			return err
		}

		var result struct {
			Matched         []string `json:"matched"`
			Missing         []string `json:"missing"`
			MatchPercentage float64  `json:"match_percentage"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Match", "%.0f%%", result.MatchPercentage)
		if len(result.Matched) > 0 {
			printStatus("Matched", "%s", strings.Join(result.Matched, ", "))
		}
		if len(result.Missing) > 0 {
			printStatus("Missing", "%s", strings.Join(result.Missing, ", "))
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vitae system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// A broken config is itself status worth reporting.
		printError("config error: %v", err)
		return nil
	}

	// The health probe doubles as the corpus stats fetch.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	serverUp := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Documents int `json:"documents"`
			Chunks    int `json:"chunks"`
		}
		if resp.StatusCode == 200 && json.NewDecoder(resp.Body).Decode(&health) == nil {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Documents", "%d", health.Documents)
			printStatus("Chunks", "%d", health.Chunks)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
		resp.Body.Close()
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

	// Show corpus summary if the server is running.
	if serverUp {
		if apiClient, err := newAPIClient(); err == nil {
			showSummary(ctx, apiClient)
		}
	}

	printStatus("Docs dir", "%s", cfg.Docs.Dir)
	printStatus("Storage", "%s", cfg.Storage.Path)
	return nil
}

func showSummary(ctx context.Context, client *apiClient) {
	resp, err := client.get(ctx, "/v1/summary")
	if err != nil {
		return
	}

	var summary struct {
		SkillCount        int      `json:"skill_count"`
		CategoriesPresent []string `json:"categories_present"`
		LastIngestedAt    string   `json:"last_ingested_at"`
	}
	if err := decodeJSON(resp, &summary); err != nil {
		return
	}

	printStatus("Skills", "%d", summary.SkillCount)
	if len(summary.CategoriesPresent) > 0 {
		printStatus("Categories", "%s", strings.Join(summary.CategoriesPresent, ", "))
	}
	if summary.LastIngestedAt != "" {
		printStatus("Last ingest", "%s", summary.LastIngestedAt)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}

		if _, err := os.Stat(path); err == nil {
			printWarning("Config already exists at %s", path)
			return nil
		}

		if err := config.Save(path, config.Default()); err != nil {
			return err
		}

		printSuccess("Wrote %s", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
