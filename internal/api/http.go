// Package api exposes the agent over HTTP (JSON) and MCP (stdio). Both
// surfaces speak the same wire shapes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitaelabs/vitae/internal/agent"
	"github.com/vitaelabs/vitae/internal/skills"
	"github.com/vitaelabs/vitae/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Agent is the engine surface the HTTP and MCP layers expose.
type Agent interface {
	Ingest(ctx context.Context, dir string) (agent.Report, error)
	Query(ctx context.Context, query string) (agent.Answer, error)
	SkillMatch(requested []string) skills.MatchResult
	Summary() agent.Summary
	RecentQueries(limit int) ([]storage.QueryRecord, error)
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Agent Agent
	Token string // empty disables bearer auth
}

// NewHandler returns the REST API. /health stays open so process monitors
// work without credentials; everything under /v1 honors the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/v1/ingest", handleIngest(deps))
		r.Post("/v1/query", handleQuery(deps))
		r.Post("/v1/skill-match", handleSkillMatch(deps))
		r.Get("/v1/summary", handleSummary(deps))
		r.Get("/v1/queries", handleRecentQueries(deps))
	})

	return r
}

// IngestRequest asks for a rebuild, optionally from a different directory.
type IngestRequest struct {
	Directory string `json:"directory"`
}

// IngestReport is the wire form of an ingest run.
type IngestReport struct {
	DocumentsIndexed int      `json:"documents_indexed"`
	ChunksIndexed    int      `json:"chunks_indexed"`
	Errors           []string `json:"errors"`
}

// QueryRequest carries one natural-language question.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the wire form of an answer.
type QueryResponse struct {
	ResponseText string   `json:"response_text"`
	Confidence   float64  `json:"confidence"`
	Sources      []string `json:"sources"`
	Category     string   `json:"category"`
}

// SkillMatchRequest carries the requested skill names.
type SkillMatchRequest struct {
	Skills []string `json:"skills"`
}

// SummaryResponse describes the indexed corpus.
type SummaryResponse struct {
	DocumentCount     int      `json:"document_count"`
	ChunkCount        int      `json:"chunk_count"`
	CategoriesPresent []string `json:"categories_present"`
	SkillCount        int      `json:"skill_count"`
	Sources           []string `json:"sources"`
	LastIngestedAt    string   `json:"last_ingested_at,omitempty"`
}

// QueryLogEntry is one recorded query.
type QueryLogEntry struct {
	ID         string  `json:"id"`
	Query      string  `json:"query"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Agent.Summary()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"documents": s.Documents,
			"chunks":    s.Chunks,
		})
	}
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		// An empty body means "re-index the configured directory".
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		report, err := deps.Agent.Ingest(r.Context(), req.Directory)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingest failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ingestReportJSON(report))
	}
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		ans, err := deps.Agent.Query(r.Context(), req.Query)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answerJSON(ans))
	}
}

func handleSkillMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SkillMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Skills) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "skills is required and must not be empty")
			return
		}

		result := deps.Agent.SkillMatch(req.Skills)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaryJSON(deps.Agent.Summary()))
	}
}

func handleRecentQueries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryLimit(r, 25, 200)

		records, err := deps.Agent.RecentQueries(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queries: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(queryLogJSON(records))
	}
}

func ingestReportJSON(report agent.Report) IngestReport {
	out := IngestReport{
		DocumentsIndexed: report.Documents,
		ChunksIndexed:    report.Chunks,
		Errors:           report.Errors,
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return out
}

func answerJSON(ans agent.Answer) QueryResponse {
	out := QueryResponse{
		ResponseText: ans.Response,
		Confidence:   ans.Confidence,
		Sources:      ans.Sources,
		Category:     string(ans.Category),
	}
	if out.Sources == nil {
		out.Sources = []string{}
	}
	return out
}

func summaryJSON(s agent.Summary) SummaryResponse {
	out := SummaryResponse{
		DocumentCount:     s.Documents,
		ChunkCount:        s.Chunks,
		CategoriesPresent: s.Categories,
		SkillCount:        s.Skills,
		Sources:           s.Sources,
	}
	if !s.LastIngestedAt.IsZero() {
		out.LastIngestedAt = s.LastIngestedAt.UTC().Format(time.RFC3339)
	}
	if out.CategoriesPresent == nil {
		out.CategoriesPresent = []string{}
	}
	if out.Sources == nil {
		out.Sources = []string{}
	}
	return out
}

func queryLogJSON(records []storage.QueryRecord) []QueryLogEntry {
	entries := make([]QueryLogEntry, len(records))
	for i, rec := range records {
		entries[i] = QueryLogEntry{
			ID:         rec.ID,
			Query:      rec.QueryText,
			Category:   rec.Category,
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return entries
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// queryLimit reads the limit query parameter, falling back to def and
// clamping to max. Anything non-numeric or non-positive means def.
func queryLimit(r *http.Request, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, max)
}
