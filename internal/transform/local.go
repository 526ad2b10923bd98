package transform

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderDelay  = "delay"
	ProviderFilter = "filter"
	ProviderGemini = "gemini"
	ProviderQueue  = "queue"
)

// LocalConfig selects one of the providers that run inside the process.
type LocalConfig struct {
	Provider     string
	Delay        time.Duration
	GeminiAPIKey string
	GeminiModel  string
}

// NewLocal builds an in-process provider. The queue provider needs a task
// client and object storage and is assembled by the caller instead.
func NewLocal(ctx context.Context, cfg LocalConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderDelay:
		return NewDelayProvider(cfg.Delay), nil
	case ProviderFilter:
		return NewFilterProvider(), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderQueue:
		return nil, fmt.Errorf("provider %q is not available in-process", cfg.Provider)
	default:
		return nil, fmt.Errorf("unknown transform provider %q", cfg.Provider)
	}
}
