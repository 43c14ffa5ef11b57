package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/lectern/internal/chunker"
	"github.com/efebarandurmaz/lectern/internal/config"
	"github.com/efebarandurmaz/lectern/internal/llm"
	"github.com/efebarandurmaz/lectern/internal/llm/anthropic"
	"github.com/efebarandurmaz/lectern/internal/llm/openai"
	"github.com/efebarandurmaz/lectern/internal/observability"
	"github.com/efebarandurmaz/lectern/internal/rag"
	"github.com/efebarandurmaz/lectern/internal/secrets"
	"github.com/efebarandurmaz/lectern/internal/server"
	"github.com/efebarandurmaz/lectern/internal/vector"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "lectern",
		Short: "Retrieval-augmented question answering over your documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/lectern.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in lectern.yaml or via environment:")
			fmt.Println("  LECTERN_LLM_PROVIDER=openai")
			fmt.Println("  LECTERN_LLM_API_KEY=sk-...")
			fmt.Println("  LECTERN_LLM_MODEL=gpt-4o-mini")
		},
	}

	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Collection operations",
	}

	collectionInfoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return collectionInfo(configPath)
		},
	}

	var force bool
	collectionDeleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the collection and all stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deletion is irreversible; re-run with --force")
			}
			return collectionDelete(configPath)
		},
	}
	collectionDeleteCmd.Flags().BoolVar(&force, "force", false, "Confirm deletion")

	collectionCmd.AddCommand(collectionInfoCmd, collectionDeleteCmd)
	rootCmd.AddCommand(serveCmd, providersCmd, collectionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	resolveSecrets(cfg)
	return cfg
}

// resolveSecrets fills API keys left out of the config file from the
// configured secrets backend, with LECTERN_-prefixed environment variables
// (LECTERN_LLM_API_KEY, LECTERN_VECTOR_API_KEY) as the fallback.
func resolveSecrets(cfg *config.Config) {
	mgrCfg := &secrets.Config{Provider: cfg.Secrets.Provider}
	if cfg.Secrets.Provider == "file" {
		mgrCfg.FileConfig = &secrets.FileConfig{Path: cfg.Secrets.FilePath}
	}
	mgr, err := secrets.NewManager(mgrCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: secrets backend unavailable (%v), keys stay unset\n", err)
		return
	}
	ctx := context.Background()
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = mgr.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), "")
	}
	if cfg.Vector.APIKey == "" {
		cfg.Vector.APIKey = mgr.GetOrDefault(ctx, string(secrets.SecretVectorAPIKey), "")
	}
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newProviderFactory registers all built-in providers. Every
// OpenAI-compatible preset reuses the openai client with its base URL.
func newProviderFactory() *llm.ProviderFactory {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
	return factory
}

func buildProvider(factory *llm.ProviderFactory, cfg *config.Config, model, embedModel string) (llm.Provider, error) {
	pc := llm.DefaultProviderConfig()
	pc.Provider = cfg.LLM.Provider
	pc.APIKey = cfg.LLM.APIKey
	pc.Model = model
	pc.BaseURL = cfg.LLM.BaseURL
	pc.EmbedModel = embedModel
	return factory.Create(pc)
}

func buildStore(cfg *config.Config, embedder vector.Embedder) (*vector.QdrantStore, error) {
	return vector.NewQdrant(vector.QdrantConfig{
		Host:        cfg.Vector.Host,
		Port:        cfg.Vector.Port,
		APIKey:      cfg.Vector.APIKey,
		Collection:  cfg.Vector.Collection,
		DefaultTopK: cfg.Retrieval.TopK,
	}, embedder)
}

func serve(configPath string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)

	ctx := context.Background()

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "lectern",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	factory := newProviderFactory()
	provider, err := buildProvider(factory, cfg, cfg.LLM.Model, cfg.LLM.EmbedModel)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	slog.Info("Using LLM provider", "provider", provider.Name(), "model", cfg.LLM.Model)

	store, err := buildStore(cfg, provider)
	if err != nil {
		return fmt.Errorf("connecting vector store: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("configuring chunker: %w", err)
	}

	// The judge runs on its own resolved model; unset fields inherit from
	// the generation config.
	var evaluator *rag.Evaluator
	if cfg.Evaluation.Enabled {
		evalModel, evalTemp, evalEmbed := cfg.Evaluation.Resolve(cfg.LLM)
		judgeProvider, err := buildProvider(factory, cfg, evalModel, evalEmbed)
		if err != nil {
			return fmt.Errorf("creating evaluation provider: %w", err)
		}
		scorer := rag.NewLLMScorer(judgeProvider, evalTemp)
		evaluator = rag.NewEvaluator(scorer, cfg.Evaluation.TimeoutDuration())
		slog.Info("Evaluation enabled", "model", evalModel, "timeout", cfg.Evaluation.TimeoutDuration())
	}

	generator := rag.NewGenerator(store, provider, evaluator, rag.GeneratorConfig{
		TopK:        cfg.Retrieval.TopK,
		Temperature: cfg.LLM.Temperature,
	})

	health := server.NewHealthServer(&server.HealthConfig{Version: version})
	health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(cfg.Vector.Collection, store.HealthCheck))
	health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), nil))

	metrics := observability.NewMetrics()
	api := server.NewServer(&server.Config{ListenAddr: cfg.Server.Addr}, ch, store, generator, health, metrics)

	shutdown := server.NewShutdownHandler(nil)
	shutdown.Register(server.HTTPServerShutdownHook("api-server", api.Stop))
	shutdown.Register(server.VectorStoreShutdownHook(store.Close))
	shutdown.Register(server.TracingShutdownHook(tracer.Shutdown))
	shutdown.Start()

	go func() {
		if err := api.Start(); err != nil {
			slog.Error("API server failed", "error", err)
			shutdown.Shutdown()
		}
	}()
	health.SetReady(true)

	// Blocks until a signal or a server failure runs the shutdown hooks.
	shutdown.Wait()
	return nil
}

func collectionInfo(configPath string) error {
	cfg := loadConfig(configPath)

	store, err := buildStore(cfg, nil)
	if err != nil {
		return fmt.Errorf("connecting vector store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := store.CollectionInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading collection info: %w", err)
	}

	fmt.Printf("Collection:      %s\n", info.Name)
	fmt.Printf("Status:          %s\n", info.Status)
	fmt.Printf("Points:          %d\n", info.PointsCount)
	fmt.Printf("Indexed vectors: %d\n", info.IndexedVectorsCount)
	return nil
}

func collectionDelete(configPath string) error {
	cfg := loadConfig(configPath)

	store, err := buildStore(cfg, nil)
	if err != nil {
		return fmt.Errorf("connecting vector store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	fmt.Printf("Collection %q deleted\n", cfg.Vector.Collection)
	return nil
}
