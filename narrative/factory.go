package narrative

import (
	"fmt"
	"strings"

	"github.com/wfunc/storyserver/config"
	"github.com/wfunc/storyserver/logger"
)

// FromConfig selects the narrator. An openai provider without an API key
// falls back to Echo so the session stays playable offline.
func FromConfig(cfg config.NarrativeConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "echo":
		return Echo{}, nil
	case "", "openai":
		if cfg.APIKey == "" {
			logger.Log.Warn("no narrative api key configured, using the offline narrator")
			return Echo{}, nil
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
	}
}
