package config

import (
	"github.com/forgechat/backend/internal/platform/envutil"
	"github.com/forgechat/backend/internal/platform/logger"
)

// Config collects the tunables of the personalization pipeline. The similarity
// threshold and context limits are configuration points, not protocol
// requirements.
type Config struct {
	Port int

	// Minimum similarity a memory must exceed to be surfaced to callers.
	SimilarityThreshold float64
	// Default number of results for a memory search.
	DefaultSearchLimit int
	// Maximum retrieved memories injected into a personalized context block.
	ContextMemoryLimit int
	// Characters kept when deriving a chat title from the first user message.
	TitleMaxLength int
}

func Load(log *logger.Logger) *Config {
	return &Config{
		Port:                envutil.GetEnvAsInt("PORT", 8080, log),
		SimilarityThreshold: envutil.GetEnvAsFloat("MEMORY_SIMILARITY_THRESHOLD", 0.7, log),
		DefaultSearchLimit:  envutil.GetEnvAsInt("MEMORY_SEARCH_LIMIT", 5, log),
		ContextMemoryLimit:  envutil.GetEnvAsInt("CONTEXT_MEMORY_LIMIT", 3, log),
		TitleMaxLength:      envutil.GetEnvAsInt("CHAT_TITLE_MAX_LENGTH", 50, log),
	}
}
