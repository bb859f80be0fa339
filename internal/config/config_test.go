package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Interview.MaxQuestions != 10 {
		t.Errorf("MaxQuestions = %d, want 10", cfg.Interview.MaxQuestions)
	}
	if cfg.Interview.ChunkSize != 1000 || cfg.Interview.ChunkOverlap != 200 {
		t.Errorf("chunking defaults = %d/%d, want 1000/200", cfg.Interview.ChunkSize, cfg.Interview.ChunkOverlap)
	}
	if cfg.LLM.Backend != "ollama" {
		t.Errorf("Backend = %q, want ollama", cfg.LLM.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VETRIQ_MAX_QUESTIONS", "5")
	t.Setenv("VETRIQ_CHAT_MODEL", "llama3.1")
	t.Setenv("VETRIQ_SERVER_PORT", "not-a-number")

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Interview.MaxQuestions != 5 {
		t.Errorf("MaxQuestions = %d, want 5", cfg.Interview.MaxQuestions)
	}
	if cfg.LLM.ChatModel != "llama3.1" {
		t.Errorf("ChatModel = %q, want llama3.1", cfg.LLM.ChatModel)
	}
	// Unparseable int override is ignored, default kept.
	if cfg.Server.Port != 4600 {
		t.Errorf("Port = %d, want default 4600", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.LLM.Backend = "gemini"
	if err := validate(cfg); err == nil {
		t.Error("expected error for gemini backend without API key")
	}

	cfg.LLM.GeminiAPIKey = "key"
	if err := validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.LLM.Backend = "openai"
	if err := validate(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = defaults()
	cfg.Interview.ChunkOverlap = cfg.Interview.ChunkSize
	if err := validate(cfg); err == nil {
		t.Error("expected error for overlap >= size")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.GeminiAPIKey = "super-secret"

	for _, k := range ShowAll(cfg) {
		if k.Value == "super-secret" {
			t.Fatalf("secret leaked through ShowAll under key %s", k.Key)
		}
	}
}
