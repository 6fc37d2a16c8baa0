package engine

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"
)

const warmupTimeout = 30 * time.Second

// EnsureReady verifies the runtime is reachable and that the chat and embed
// models are installed, pulling whichever is missing with progress written
// to w. The chat model is then warmed with a trivial request so the first
// real query doesn't pay the cold-load penalty; a failed warm-up is reported
// but never fatal.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference runtime is not reachable; start ollama and try again")
	}

	var models []string
	for _, m := range []string{chatModel, embedModel} {
		if m != "" && !slices.Contains(models, m) {
			models = append(models, m)
		}
	}

	for _, model := range models {
		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "%s: available\n", model)
			continue
		}
		fmt.Fprintf(w, "%s: not found locally, pulling\n", model)
		if err := pullWithProgress(ctx, e, model, w); err != nil {
			return fmt.Errorf("pulling %s: %w", model, err)
		}
		fmt.Fprintf(w, "%s: pulled\n", model)
	}

	if chatModel == "" {
		return nil
	}

	fmt.Fprintf(w, "%s: warming up\n", chatModel)
	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	if _, err := e.Chat(warmCtx, chatModel, []Message{{Role: "user", Content: "ping"}}); err != nil {
		fmt.Fprintf(w, "%s: warm-up failed, continuing: %v\n", chatModel, err)
		return nil
	}
	fmt.Fprintf(w, "%s: warm\n", chatModel)
	return nil
}

// pullWithProgress streams pull status lines to w, indented under the model
// header.
func pullWithProgress(ctx context.Context, e Engine, model string, w io.Writer) error {
	return e.PullModel(ctx, model, func(p PullProgress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "  %s (%.0f%%)\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
			return
		}
		fmt.Fprintf(w, "  %s\n", p.Status)
	})
}
