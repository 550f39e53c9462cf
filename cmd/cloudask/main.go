package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/wilhg/cloudask/internal/config"
	"github.com/wilhg/cloudask/internal/logger"
	"github.com/wilhg/cloudask/pkg/adapters/cloud"
	"github.com/wilhg/cloudask/pkg/adapters/embedding"
	"github.com/wilhg/cloudask/pkg/adapters/llm"
	"github.com/wilhg/cloudask/pkg/adapters/vectorstore"
	"github.com/wilhg/cloudask/pkg/agent"
	"github.com/wilhg/cloudask/pkg/catalog"
	"github.com/wilhg/cloudask/pkg/index"
	"github.com/wilhg/cloudask/pkg/otel"
	"github.com/wilhg/cloudask/pkg/prompt"
	"github.com/wilhg/cloudask/pkg/runtime"

	// providers
	_ "github.com/wilhg/cloudask/pkg/adapters/embedding/fake"
	_ "github.com/wilhg/cloudask/pkg/adapters/embedding/gemini"
	_ "github.com/wilhg/cloudask/pkg/adapters/embedding/ollama"
	_ "github.com/wilhg/cloudask/pkg/adapters/embedding/openai"
	_ "github.com/wilhg/cloudask/pkg/adapters/llm/fake"
	_ "github.com/wilhg/cloudask/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/cloudask/pkg/adapters/llm/ollama"
	_ "github.com/wilhg/cloudask/pkg/adapters/llm/openai"
	_ "github.com/wilhg/cloudask/pkg/adapters/vectorstore/chromadb"
	_ "github.com/wilhg/cloudask/pkg/adapters/vectorstore/memory"
)

func main() {
	loadEnvFiles()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func loadEnvFiles() {
	for _, path := range []string{".env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

// run returns the process exit code.
func run(ctx context.Context, in io.Reader, out, errOut io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	log := logger.NewWithWriter(errOut, cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	shutdown, err := otel.Init(ctx, otel.Config{ServiceName: cfg.ServiceName, UseStdout: cfg.OTelStdout, Writer: errOut})
	if err != nil {
		log.Error().Err(err).Msg("init tracing")
		return 1
	}
	defer func() { _ = shutdown(context.Background()) }()

	runner, cleanup, err := setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		fmt.Fprintf(errOut, "cloudask: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := runner.Loop(ctx, in, out); err != nil {
		log.Error().Err(err).Msg("read input")
		return 1
	}
	return 0
}

func setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*runtime.Runner, func(), error) {
	awsCfg, err := cloud.LoadConfig(ctx, cloud.Options{
		Region:      cfg.AWSRegion,
		Endpoint:    cfg.AWSEndpointURL,
		MaxAttempts: cfg.AWSMaxAttempts,
	})
	if err != nil {
		return nil, nil, err
	}
	services, err := selectServices(cfg.Services)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Build(ctx, awsCfg, services, catalog.WithLogger(log.With().Str("component", "catalog").Logger()))
	if err != nil {
		return nil, nil, err
	}

	regOpts := []agent.RegistryOption{agent.WithTimeout(cfg.ToolTimeout)}
	if cfg.ReadOnly {
		regOpts = append(regOpts, agent.WithAllowedPermissions(agent.PermissionRead))
	}
	reg := agent.NewRegistry(regOpts...)
	if err := cat.Register(reg); err != nil {
		return nil, nil, err
	}

	embedF, ok := embedding.Resolve(cfg.EmbeddingProvider)
	if !ok {
		return nil, nil, fmt.Errorf("unknown embedding provider %q (have %v)", cfg.EmbeddingProvider, embedding.Names())
	}
	embedder, err := embedF(ctx, cfg.EmbeddingSettings())
	if err != nil {
		return nil, nil, fmt.Errorf("embedding provider %s: %w", cfg.EmbeddingProvider, err)
	}
	storeF, ok := vectorstore.Resolve(cfg.VectorStoreProvider)
	if !ok {
		return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStoreProvider)
	}
	store, err := storeF(ctx, cfg.VectorStoreSettings())
	if err != nil {
		return nil, nil, fmt.Errorf("vector store %s: %w", cfg.VectorStoreProvider, err)
	}
	llmF, ok := llm.Resolve(cfg.LLMProvider)
	if !ok {
		return nil, nil, fmt.Errorf("unknown llm provider %q (have %v)", cfg.LLMProvider, llm.Names())
	}
	model, err := llmF(ctx, cfg.LLMSettings())
	if err != nil {
		return nil, nil, fmt.Errorf("llm provider %s: %w", cfg.LLMProvider, err)
	}
	if p, ok := model.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("generation backend not reachable; questions will fail until it is")
		}
	}

	idx := index.New(embedder, store,
		index.WithBatchSize(cfg.EmbeddingBatchSize),
		index.WithLogger(log.With().Str("component", "index").Logger()),
	)
	cleanup := func() {
		if err := idx.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("close index")
		}
	}
	if err := idx.Add(ctx, cat.Descriptors()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("index catalog: %w", err)
	}

	budget := prompt.Budget{MaxTokens: cfg.PromptMaxTokens}
	if cfg.PromptTokenizerModel != "" {
		est, err := prompt.NewTikTokenEstimator(cfg.PromptTokenizerModel)
		if err != nil {
			log.Warn().Err(err).Str("model", cfg.PromptTokenizerModel).Msg("tokenizer unavailable; estimating by runes")
		} else {
			budget.Estimate = est
		}
	}

	runner := runtime.NewRunner(idx, reg, model,
		runtime.WithTopK(cfg.TopK),
		runtime.WithBudget(budget),
		runtime.WithSummaryLimit(cfg.SummaryMaxBytes),
		runtime.WithLogger(log.With().Str("component", "runtime").Logger()),
	)
	return runner, cleanup, nil
}

// selectServices returns every built-in service, or only the named ones.
func selectServices(names []string) ([]cloud.Service, error) {
	if len(names) == 0 {
		return cloud.Services(), nil
	}
	var out []cloud.Service
	for _, n := range names {
		if n == "" {
			continue
		}
		s, ok := cloud.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown service %q in CLOUDASK_SERVICES", n)
		}
		out = append(out, s)
	}
	return out, nil
}
