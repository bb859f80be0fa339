package config

import (
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "VETRIQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.backend", typ: kString, env: "VETRIQ_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.ollama_url", typ: kString, env: "VETRIQ_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OllamaURL },
	},
	{
		key: "llm.chat_model", typ: kString, env: "VETRIQ_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ChatModel },
	},
	{
		key: "llm.embed_model", typ: kString, env: "VETRIQ_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.gemini_api_key", typ: kString, env: "VETRIQ_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.GeminiAPIKey },
	},
	{
		key: "llm.gemini_model", typ: kString, env: "VETRIQ_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.GeminiModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VETRIQ_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "VETRIQ_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.subquery_timeout", typ: kString, env: "VETRIQ_SUBQUERY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.SubQueryTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.SubQueryTimeout },
	},
	{
		key: "interview.max_questions", typ: kInt, env: "VETRIQ_MAX_QUESTIONS",
		apply:   func(cfg *Config, v any) { cfg.Interview.MaxQuestions = v.(int) },
		extract: func(cfg Config) any { return cfg.Interview.MaxQuestions },
	},
	{
		key: "interview.resume_phase_questions", typ: kInt, env: "VETRIQ_RESUME_PHASE_QUESTIONS",
		apply:   func(cfg *Config, v any) { cfg.Interview.ResumePhaseQuestions = v.(int) },
		extract: func(cfg Config) any { return cfg.Interview.ResumePhaseQuestions },
	},
	{
		key: "interview.chunk_size", typ: kInt, env: "VETRIQ_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Interview.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Interview.ChunkSize },
	},
	{
		key: "interview.chunk_overlap", typ: kInt, env: "VETRIQ_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Interview.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Interview.ChunkOverlap },
	},
	{
		key: "log.level", typ: kString, env: "VETRIQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if v, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, v)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  stringify(s.extract(cfg)),
		})
	}
	return result
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
