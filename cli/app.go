// Application wiring for CLI commands.
//
// Information Hiding:
// - Backend selection (embedder, conversation store, provider) hidden
// - Construction order and cleanup hidden behind App

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/coursebot/agent"
	"github.com/richinex/coursebot/config"
	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/orchestration"
	"github.com/richinex/coursebot/storage"
	"github.com/richinex/coursebot/tools"
	"github.com/richinex/coursebot/vectorindex"
)

// App holds the wired components of one process.
type App struct {
	Settings     config.Settings
	Log          *logging.Logger
	Index        *vectorindex.SqliteIndex
	Store        Store
	Registry     *tools.Registry
	Engine       *agent.Engine
	Orchestrator *orchestration.Orchestrator

	closers []func() error
}

// Store is a conversation store the process owns.
type Store interface {
	storage.ConversationStore
	Ping(ctx context.Context) error
	Close() error
}

// Build wires settings into a ready App. The caller must Close it.
func Build(ctx context.Context, settings config.Settings, log *logging.Logger) (*App, error) {
	app, err := BuildIndexOnly(ctx, settings, log)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, settings)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store
	app.closers = append(app.closers, store.Close)

	provider, err := openProvider(settings)
	if err != nil {
		app.Close()
		return nil, err
	}
	client := llm.NewClient(provider, 0, log)

	app.Registry = tools.NewRegistry(tools.NewExecutor(settings.ToolTimeout), log)
	if err := tools.RegisterRetrievalTools(app.Registry, app.Index, settings.MaxResults); err != nil {
		app.Close()
		return nil, err
	}

	app.Engine, err = agent.NewBuilder(client).
		MaxRounds(settings.MaxToolRounds).
		Logger(log).
		Build()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Orchestrator = orchestration.New(app.Store, app.Registry, app.Engine, log)
	return app, nil
}

// BuildIndexOnly opens just the vector index, for commands that never call a model.
func BuildIndexOnly(ctx context.Context, settings config.Settings, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}
	app := &App{Settings: settings, Log: log}

	embedder, err := openEmbedder(ctx, settings)
	if err != nil {
		return nil, err
	}
	index, err := vectorindex.Open(settings.IndexPath, embedder,
		vectorindex.WithTimeout(settings.IndexTimeout),
		vectorindex.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	app.Index = index
	app.closers = append(app.closers, index.Close)
	return app, nil
}

// Close releases everything Build opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openEmbedder(ctx context.Context, s config.Settings) (vectorindex.Embedder, error) {
	switch s.EmbeddingProvider {
	case config.EmbeddingOpenAI:
		key, err := config.APIKeyFor("openai")
		if err != nil {
			return nil, err
		}
		return vectorindex.NewOpenAIEmbedder(key, s.EmbeddingModel), nil
	case config.EmbeddingGemini:
		key, err := config.APIKeyFor("gemini")
		if err != nil {
			return nil, err
		}
		return vectorindex.NewGeminiEmbedder(ctx, key, s.EmbeddingModel, s.EmbeddingDim)
	default:
		return vectorindex.NewHashEmbedder(s.EmbeddingDim), nil
	}
}

func openStore(ctx context.Context, s config.Settings) (Store, error) {
	opts := []storage.Option{storage.WithWindow(s.MaxHistory), storage.WithRetain(s.HistoryRetain)}
	switch s.ConversationBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(opts...), nil
	case config.BackendDynamoDB:
		store, err := storage.OpenDynamo(ctx, s.DynamoDBTable, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := storage.OpenSqlite(s.ConversationDB, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func openProvider(s config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(s.LLMProvider)
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(s.LLMProvider)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:        providerType,
		APIKey:      apiKey,
		Model:       s.LLMModel,
		MaxTokens:   s.LLMMaxTokens,
		Temperature: s.LLMTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", s.LLMProvider, err)
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = s.LLMMaxAttempts
	retry.AttemptTimeout = s.LLMTimeout
	return llm.WithRetry(provider, retry), nil
}
