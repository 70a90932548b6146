// Package app assembles the collaborators shared by the HTTP server and the
// terminal client from configuration.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/med-chat/backend/internal/config"
	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	"github.com/zhouzirui/med-chat/backend/internal/service/chat"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

const redisKeyPrefix = "medchat:"

// Closer releases whatever a built component holds open.
type Closer func()

func noopCloser() {}

// BuildStore opens the transcript store selected by cfg.
func BuildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, Closer, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return store.NewMemoryStore(), noopCloser, nil
	case config.StoreSQLite:
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("[app] sqlite transcript store ready")
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("[app] closing sqlite store")
			}
		}, nil
	case config.StoreRedis:
		rdb, err := store.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Dur("ttl", cfg.TTL).Msg("[app] redis transcript store ready")
		return store.NewRedisStore(rdb, redisKeyPrefix, cfg.TTL), func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("[app] closing redis client")
			}
		}, nil
	case config.StorePostgres:
		st, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("[app] postgres transcript store ready")
		return st, st.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// BuildCompleter creates the completion boundary for the configured provider.
func BuildCompleter(ctx context.Context, cfg config.AIConfig) (ai.Completer, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "init ark chat model")
		}
		log.Info().Str("model", cfg.Ark.Model).Msg("[app] ark completion boundary ready")
		return ai.NewEinoCompleter(chatModel), nil
	case config.ProviderOpenRouter, "":
		if cfg.OpenRouter.APIKey == "" {
			log.Warn().Msg("[app] OPENROUTER_API_KEY is empty, requests will be rejected by the provider")
		}
		log.Info().Str("model", cfg.OpenRouter.Model).Str("baseURL", cfg.OpenRouter.BaseURL).Msg("[app] openrouter completion boundary ready")
		return ai.NewOpenRouterCompleter(ai.OpenRouterConfig{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			Referer: cfg.OpenRouter.SiteURL,
			Title:   cfg.OpenRouter.SiteName,
		}), nil
	default:
		return nil, errors.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// LoadProfiles returns the profiles from path, or the built-in seed when path is empty.
func LoadProfiles(path string) (*profile.MemoryStore, error) {
	if path == "" {
		return profile.NewMemoryStore(profile.Seed()), nil
	}
	items, err := profile.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("profiles", len(items)).Msg("[app] profiles loaded")
	return profile.NewMemoryStore(items), nil
}

// Build wires a chat service from configuration. The returned Closer releases
// the store.
func Build(ctx context.Context, cfg *config.Config) (*chat.Service, Closer, error) {
	profiles, err := LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return nil, nil, err
	}

	completer, err := BuildCompleter(ctx, cfg.AI)
	if err != nil {
		return nil, nil, err
	}

	st, closeStore, err := BuildStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	svc := chat.NewService(chat.Options{
		Profiles:  profiles,
		Store:     st,
		Completer: completer,
		Model:     cfg.AI.RequestModel(),
	})
	return svc, closeStore, nil
}
