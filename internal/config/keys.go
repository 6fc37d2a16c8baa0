package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VITAE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "VITAE_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "docs.dir", typ: kString, env: "VITAE_DOCS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Docs.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Docs.Dir },
	},
	{
		key: "storage.path", typ: kString, env: "VITAE_STORAGE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Path },
	},
	{
		key: "ollama.base_url", typ: kString, env: "VITAE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "VITAE_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "VITAE_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "chunking.target_chars", typ: kInt, env: "VITAE_CHUNKING_TARGET_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Chunking.TargetChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.TargetChars },
	},
	{
		key: "chunking.overlap_chars", typ: kInt, env: "VITAE_CHUNKING_OVERLAP_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Chunking.OverlapChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.OverlapChars },
	},
	{
		key: "chunking.boundary_tolerance", typ: kInt, env: "VITAE_CHUNKING_BOUNDARY_TOLERANCE",
		apply:   func(cfg *Config, v any) { cfg.Chunking.BoundaryTolerance = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.BoundaryTolerance },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "VITAE_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.min_confidence", typ: kFloat, env: "VITAE_RETRIEVAL_MIN_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinConfidence },
	},
	{
		key: "synthesis.provider", typ: kString, env: "VITAE_SYNTHESIS_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Synthesis.Provider },
	},
	{
		key: "synthesis.max_context_chars", typ: kInt, env: "VITAE_SYNTHESIS_MAX_CONTEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.MaxContextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Synthesis.MaxContextChars },
	},
	{
		key: "synthesis.timeout", typ: kString, env: "VITAE_SYNTHESIS_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Synthesis.Timeout },
	},
	{
		key: "cloud.api_key", typ: kString, env: "VITAE_CLOUD_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Cloud.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.APIKey },
	},
	{
		key: "cloud.model", typ: kString, env: "VITAE_CLOUD_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Cloud.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.Model },
	},
	{
		key: "cloud.base_url", typ: kString, env: "VITAE_CLOUD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Cloud.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.BaseURL },
	},
	{
		key: "watch.enabled", typ: kBool, env: "VITAE_WATCH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Watch.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Watch.Enabled },
	},
	{
		key: "watch.debounce", typ: kString, env: "VITAE_WATCH_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Watch.Debounce = v.(string) },
		extract: func(cfg Config) any { return cfg.Watch.Debounce },
	},
	{
		key: "log.level", typ: kString, env: "VITAE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// applyEnvOverrides lets VITAE_* variables win over file values. A value
// that fails to parse is reported and skipped; config loading never fails
// on a bad environment variable.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseKeyValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s=%q: %v\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

func parseKeyValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

// KeyInfo is one config key rendered for `vitae config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists every config key with its effective value. Secrets (the
// server token, the cloud API key) are redacted to "(set)" when non-empty.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		v := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret && v != "" {
			v = "(set)"
		}
		out = append(out, KeyInfo{Key: s.key, EnvVar: s.env, Value: v})
	}
	return out
}
