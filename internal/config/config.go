package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Docs      DocsConfig      `yaml:"docs"`
	Storage   StorageConfig   `yaml:"storage"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Watch     WatchConfig     `yaml:"watch"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// Token guards every /v1 route when set. Empty means no auth, which is
	// the expected setup for a single-user machine.
	Token string `yaml:"token"`
}

type DocsConfig struct {
	Dir string `yaml:"dir"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
}

type ChunkingConfig struct {
	TargetChars       int `yaml:"target_chars"`
	OverlapChars      int `yaml:"overlap_chars"`
	BoundaryTolerance int `yaml:"boundary_tolerance"`
}

type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type SynthesisConfig struct {
	// Provider selects the completion backend: "local" (Ollama) or "cloud".
	Provider        string `yaml:"provider"`
	MaxContextChars int    `yaml:"max_context_chars"`
	// Timeout is a Go duration string; invalid values fall back to the
	// default at startup.
	Timeout string `yaml:"timeout"`
}

type CloudConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Docs: DocsConfig{
			Dir: "./data",
		},
		Storage: StorageConfig{
			Path: "./data/.vitae/vitae.db",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Chunking: ChunkingConfig{
			TargetChars:       1000,
			OverlapChars:      200,
			BoundaryTolerance: 250,
		},
		Retrieval: RetrievalConfig{
			TopK:          4,
			MinConfidence: 0.25,
		},
		Synthesis: SynthesisConfig{
			Provider:        "local",
			MaxContextChars: 4000,
			Timeout:         "60s",
		},
		Cloud: CloudConfig{
			Model: "anthropic/claude-3.5-haiku",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "2s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the effective configuration: compiled-in defaults, then the
// YAML file (explicit path, else $VITAE_CONFIG, else the user config path),
// then VITAE_* environment variables. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("VITAE_CONFIG")
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unmarshal on top of the defaults so keys absent from the file
		// keep their default values, booleans included.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Fine: run on defaults plus environment.
	default:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating directories as needed. The file
// is user-only readable since it may carry the server token or an API key.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Default returns the compiled-in configuration, used to seed a new config
// file.
func Default() Config {
	return defaults()
}

// DefaultPath returns the user config file path, honoring XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vitae", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vitae", "config.yaml"), nil
}

func validate(cfg Config) error {
	switch cfg.Synthesis.Provider {
	case "local":
	case "cloud":
		if cfg.Cloud.APIKey == "" {
			return errors.New("missing required config: cloud API key. " +
				"Set cloud.api_key in the config file or the VITAE_CLOUD_API_KEY environment variable")
		}
	default:
		return fmt.Errorf("unknown synthesis.provider %q (want \"local\" or \"cloud\")", cfg.Synthesis.Provider)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	return nil
}
