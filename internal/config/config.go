package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Interview InterviewConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// LLMConfig selects and configures the inference backend.
// Backend is "ollama" or "gemini".
type LLMConfig struct {
	Backend      string
	OllamaURL    string
	ChatModel    string
	EmbedModel   string
	GeminiAPIKey string
	GeminiModel  string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK            int
	SubQueryTimeout string
}

type InterviewConfig struct {
	MaxQuestions         int
	ResumePhaseQuestions int
	ChunkSize            int
	ChunkOverlap         int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LLM: LLMConfig{
			Backend:     "ollama",
			OllamaURL:   "http://localhost:11434",
			ChatModel:   "mistral-nemo",
			EmbedModel:  "nomic-embed-text",
			GeminiModel: "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:            3,
			SubQueryTimeout: "10s",
		},
		Interview: InterviewConfig{
			MaxQuestions:         10,
			ResumePhaseQuestions: 4,
			ChunkSize:            1000,
			ChunkOverlap:         200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vetriq"
	}
	return filepath.Join(home, ".vetriq")
}

// Load builds the configuration from defaults and VETRIQ_* environment
// variable overrides.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	switch cfg.LLM.Backend {
	case "ollama":
	case "gemini":
		if cfg.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("missing required config: Gemini API key. Set it via environment variable VETRIQ_GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown llm backend %q (expected \"ollama\" or \"gemini\")", cfg.LLM.Backend)
	}

	if cfg.Interview.MaxQuestions <= 0 {
		return fmt.Errorf("interview.max_questions must be positive, got %d", cfg.Interview.MaxQuestions)
	}
	if cfg.Interview.ChunkOverlap >= cfg.Interview.ChunkSize {
		return fmt.Errorf("interview.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Interview.ChunkOverlap, cfg.Interview.ChunkSize)
	}
	return nil
}
