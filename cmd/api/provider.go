package main

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/dunamismax/styleflow/internal/config"
	"github.com/dunamismax/styleflow/internal/queue"
	"github.com/dunamismax/styleflow/internal/storage"
	"github.com/dunamismax/styleflow/internal/transform"
)

// buildProvider picks the transform backend. The queue provider hands work
// to cmd/worker and needs both Redis and object storage.
func buildProvider(ctx context.Context, cfg config.Config, logger *log.Logger, objects *storage.Client) (transform.Provider, func(), error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Transform.Provider))
	if name != transform.ProviderQueue {
		provider, err := transform.NewLocal(ctx, transform.LocalConfig{
			Provider:     name,
			Delay:        cfg.Transform.Delay,
			GeminiAPIKey: cfg.Transform.GeminiAPIKey,
			GeminiModel:  cfg.Transform.GeminiModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return provider, func() {}, nil
	}

	if objects == nil {
		return nil, nil, errors.New("queue provider requires MINIO_ENDPOINT")
	}
	client := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Queue.TaskTimeout)
	provider, err := transform.NewQueueProvider(logger, client, objects, cfg.Transform.PollInterval)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return provider, func() {
		if err := client.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}, nil
}
