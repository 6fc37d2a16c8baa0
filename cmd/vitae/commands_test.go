package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vitaelabs/vitae/internal/config"
)

// capturedCall is one request the fake server saw.
type capturedCall struct {
	method string
	path   string
	body   string
	auth   string
}

// fakeServer plays canned JSON responses keyed by "METHOD /path" and records
// every call for assertion. Unknown routes get the API's 404 envelope.
type fakeServer struct {
	*httptest.Server
	calls []capturedCall
}

func newFakeServer(t *testing.T, canned map[string]string) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		fs.calls = append(fs.calls, capturedCall{
			method: r.Method,
			path:   r.URL.RequestURI(),
			body:   string(raw),
			auth:   r.Header.Get("Authorization"),
		})

		w.Header().Set("Content-Type", "application/json")
		if resp, ok := canned[r.Method+" "+r.URL.Path]; ok {
			io.WriteString(w, resp)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"no such route","type":"not_found"}}`)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) apiClient() *apiClient {
	return &apiClient{
		baseURL:    fs.URL,
		token:      "vitae-test-token",
		httpClient: fs.Client(),
	}
}

var ctx = context.Background()

func TestAskCommand(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"POST /v1/query": `{"response_text":"Seven years of Go.","confidence":0.82,"sources":["resume.md"],"category":"experience"}`,
	})

	client := fs.apiClient()

	resp, err := client.post(ctx, "/v1/query", map[string]any{"query": "years of Go experience"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var answer struct {
		ResponseText string   `json:"response_text"`
		Confidence   float64  `json:"confidence"`
		Sources      []string `json:"sources"`
	}
	if err := decodeJSON(resp, &answer); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if answer.ResponseText != "Seven years of Go." {
		t.Errorf("response_text = %q, want %q", answer.ResponseText, "Seven years of Go.")
	}
	if answer.Confidence < 0.8 {
		t.Errorf("confidence = %f, want > 0.8", answer.Confidence)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "resume.md" {
		t.Errorf("sources = %v, want [resume.md]", answer.Sources)
	}

	if len(fs.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fs.calls))
	}

	call := fs.calls[0]
	if call.method != "POST" || call.path != "/v1/query" {
		t.Errorf("call = %s %s, want POST /v1/query", call.method, call.path)
	}
	if call.auth != "Bearer vitae-test-token" {
		t.Errorf("auth = %q, want the bearer token attached", call.auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(call.body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["query"] != "years of Go experience" {
		t.Errorf("body.query = %v, want 'years of Go experience'", body["query"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "requires at least 1 arg") {
		t.Errorf("error = %q, want it to mention the arg requirement", err.Error())
	}
}

func TestIngestCommand(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"POST /v1/ingest": `{"documents_indexed":3,"chunks_indexed":41,"errors":["skipping scan.pdf: encrypted"]}`,
	})

	client := fs.apiClient()

	resp, err := client.post(ctx, "/v1/ingest", map[string]any{"directory": "/docs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report struct {
		DocumentsIndexed int      `json:"documents_indexed"`
		ChunksIndexed    int      `json:"chunks_indexed"`
		Errors           []string `json:"errors"`
	}
	if err := decodeJSON(resp, &report); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if report.DocumentsIndexed != 3 {
		t.Errorf("documents_indexed = %d, want 3", report.DocumentsIndexed)
	}
	if report.ChunksIndexed != 41 {
		t.Errorf("chunks_indexed = %d, want 41", report.ChunksIndexed)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(report.Errors))
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(fs.calls[0].body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["directory"] != "/docs" {
		t.Errorf("body.directory = %v, want /docs", body["directory"])
	}
}

func TestMatchCommand(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"POST /v1/skill-match": `{"matched":["go","postgresql"],"missing":["kubernetes"],"match_percentage":66.7}`,
	})

	client := fs.apiClient()

	resp, err := client.post(ctx, "/v1/skill-match", map[string]any{"skills": []string{"go", "postgresql", "kubernetes"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Matched         []string `json:"matched"`
		Missing         []string `json:"missing"`
		MatchPercentage float64  `json:"match_percentage"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Matched) != 2 {
		t.Errorf("matched = %v, want 2 entries", result.Matched)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "kubernetes" {
		t.Errorf("missing = %v, want [kubernetes]", result.Missing)
	}
	if result.MatchPercentage != 66.7 {
		t.Errorf("match_percentage = %f, want 66.7", result.MatchPercentage)
	}

	var body struct {
		Skills []string `json:"skills"`
	}
	if err := json.Unmarshal([]byte(fs.calls[0].body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if len(body.Skills) != 3 {
		t.Errorf("body.skills = %v, want 3 entries", body.Skills)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"GET /health": `{"status":"ok","documents":4,"chunks":52}`,
	})

	resp, err := fs.apiClient().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var health struct {
		Documents int `json:"documents"`
		Chunks    int `json:"chunks"`
	}
	if err := decodeJSON(resp, &health); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if health.Documents != 4 || health.Chunks != 52 {
		t.Errorf("health = %+v, want 4 documents and 52 chunks", health)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	fs := newFakeServer(t, nil)
	fs.Close()

	_, err := fs.apiClient().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "ready"); got != "ready" {
		t.Errorf("noColor=true should pass text through, got %q", got)
	}

	noColor = false
	got := colorize(colorGreen, "ready")
	if !strings.HasPrefix(got, colorGreen) || !strings.HasSuffix(got, colorReset) {
		t.Errorf("noColor=false should wrap text in ANSI codes, got %q", got)
	}
}

func TestConfidenceColor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.9, colorGreen},
		{0.6, colorGreen},
		{0.45, colorYellow},
		{0.3, colorYellow},
		{0.1, colorRed},
		{0, colorRed},
	}
	for _, tt := range tests {
		if got := confidenceColor(tt.confidence); got != tt.want {
			t.Errorf("confidenceColor(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}

func TestAPIClientAuth(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := fs.apiClient()
	client.token = "s3cret"

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fs.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fs.calls))
	}
	if got := fs.calls[0].auth; got != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer s3cret")
	}
}

func TestAPIClientNoToken(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := fs.apiClient()
	client.token = ""

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fs.calls[0].auth; got != "" {
		t.Errorf("Authorization = %q, want no header when no token is configured", got)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	fs := newFakeServer(t, nil)

	resp, err := fs.apiClient().get(ctx, "/v1/summary")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want the status code included", err.Error())
	}
	if !strings.Contains(err.Error(), "no such route") {
		t.Errorf("error = %q, want the envelope message extracted", err.Error())
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "bad gateway")
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("error = %q, want raw body included", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 4601
	cfg.Server.Token = "hush"

	byKey := make(map[string]string)
	for _, k := range config.ShowAll(cfg) {
		byKey[k.Key] = k.Value
	}

	if byKey["server.port"] != "4601" {
		t.Errorf("server.port = %q, want 4601", byKey["server.port"])
	}
	if byKey["server.token"] != "(set)" {
		t.Errorf("server.token = %q, want redacted as (set)", byKey["server.token"])
	}
	if byKey["synthesis.provider"] != "local" {
		t.Errorf("synthesis.provider = %q, want local", byKey["synthesis.provider"])
	}
}

func TestParseDurationOr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "1s"},
		{"500ms", "500ms"},
		{"2m", "2m0s"},
		{"soon", "1s"},
	}
	for _, tt := range tests {
		got := parseDurationOr(tt.in, time.Second)
		if got.String() != tt.want {
			t.Errorf("parseDurationOr(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
