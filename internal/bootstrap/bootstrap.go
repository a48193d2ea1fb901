package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/enrich"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/intent"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/usecase"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/metadata"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/metadata/jsonfile"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/vector/flat"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/vector/qdrant"
)

// dimensionProbe is embedded once at start-up to learn the embedding size.
const dimensionProbe = "ata de reunião do comitê de investimentos"

type App struct {
	Config config.Config

	AnswerUC *usecase.AnswerUseCase
	Store    *metadata.Store
	Executor *resilience.Executor
}

// Engine bundles the rule-driven components shared by the server and the indexer.
type Engine struct {
	Rules     *rules.Rules
	Matcher   *entity.Matcher
	Extractor *entity.Extractor
	Enricher  *enrich.Enricher
}

func NewEngine(rulesPath string) (*Engine, error) {
	r, err := rules.Load(rulesPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load rules", err)
	}
	matcher := entity.NewMatcher(r.Entity)
	extractor, err := entity.NewExtractor(r.Entity, matcher)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "build entity extractor", err)
	}
	enricher, err := enrich.NewEnricher(r.Documents, extractor)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "build enricher", err)
	}
	return &Engine{Rules: r, Matcher: matcher, Extractor: extractor, Enricher: enricher}, nil
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	engine, err := NewEngine(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	executor := NewExecutor(cfg)

	storage, err := localfs.New(cfg.DocumentsRoot)
	if err != nil {
		return nil, fmt.Errorf("init document storage: %w", err)
	}
	records, err := LoadRecords(ctx, cfg)
	if err != nil {
		return nil, err
	}
	records, err = metadata.Prepare(ctx, records, storage, engine.Enricher)
	if err != nil {
		return nil, fmt.Errorf("prepare records: %w", err)
	}
	store := metadata.NewStore(records)

	embedder, err := NewEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}
	completer, err := NewCompleter(cfg, executor)
	if err != nil {
		return nil, err
	}

	dimension, err := ProbeDimension(ctx, embedder)
	if err != nil {
		return nil, err
	}
	index, err := openIndex(ctx, cfg, dimension, executor)
	if err != nil {
		return nil, err
	}
	if index.Size() != store.Len() {
		return nil, domain.WrapError(domain.ErrConfiguration, "align index",
			fmt.Errorf("index holds %d vectors but metadata has %d records", index.Size(), store.Len()))
	}

	scorer := usecase.NewTemporalScorer(time.Now)
	answerUC := usecase.NewAnswerUseCase(usecase.AnswerDeps{
		Classifier: intent.NewClassifier(engine.Rules.Intent),
		Retriever:  usecase.NewRetriever(embedder, index, store),
		Selector:   usecase.NewSelector(engine.Matcher, scorer),
		Assembler:  usecase.NewAssembler(cfg.RAGContextCharLimit),
		Matcher:    engine.Matcher,
		Extractor:  engine.Extractor,
		Store:      store,
		Completer:  completer,
		Expansion:  engine.Rules.Intent.AnalyticalExpansion,
	}, Limits(cfg))

	slog.Info("engine_ready",
		"records", store.Len(),
		"dimension", dimension,
		"vector_backend", cfg.VectorBackend,
		"metadata_backend", cfg.MetadataBackend,
	)
	return &App{
		Config:   cfg,
		AnswerUC: answerUC,
		Store:    store,
		Executor: executor,
	}, nil
}

func Limits(cfg config.Config) domain.AnswerLimits {
	return domain.AnswerLimits{
		TopK:                   cfg.RAGTopK,
		AnalyticalCandidates:   cfg.RAGAnalyticalCandidates,
		SummaryCandidates:      cfg.RAGSummaryCandidates,
		MaxPerEntity:           cfg.RAGMaxPerEntity,
		MaxTotal:               cfg.RAGMaxTotal,
		AnalyticalMaxPerEntity: cfg.RAGAnalyticalMaxPerEntity,
		AnalyticalMaxTotal:     cfg.RAGAnalyticalMaxTotal,
		DocCharLimit:           cfg.RAGDocCharLimit,
		AnalyticalDocCharLimit: cfg.RAGAnalyticalDocCharLimit,
		LookupLimit:            cfg.RAGLookupLimit,
		MaxTokens:              cfg.CompletionMaxTokens,
		CompletionTimeout:      cfg.CompletionTimeout,
	}
}

func NewExecutor(cfg config.Config) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	rc.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	rc.AttemptTimeout = cfg.ResilienceAttemptTimeout
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return resilience.NewExecutor(rc)
}

// LoadRecords reads the whole metadata collection from the configured backend.
func LoadRecords(ctx context.Context, cfg config.Config) ([]domain.DocumentRecord, error) {
	switch cfg.MetadataBackend {
	case "json", "":
		return jsonfile.Load(cfg.MetadataPath)
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "open postgres", err)
		}
		defer db.Close()

		repo := postgres.NewRecordRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo.LoadAll(ctx)
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "load records",
			fmt.Errorf("unknown METADATA_BACKEND %q", cfg.MetadataBackend))
	}
}

func NewEmbedder(cfg config.Config, executor *resilience.Executor) (ports.BatchEmbedder, error) {
	switch cfg.EmbedProvider {
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaTimeout, executor)
		return ollama.NewEmbedder(client), nil
	case "openai":
		client, err := newOpenAIClient(cfg, executor)
		if err != nil {
			return nil, err
		}
		return openai.NewEmbedder(client), nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "init embedder",
			fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider))
	}
}

func NewCompleter(cfg config.Config, executor *resilience.Executor) (ports.Completer, error) {
	switch cfg.CompletionProvider {
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaTimeout, executor)
		return ollama.NewCompleter(client, cfg.CompletionTemperature), nil
	case "openai":
		client, err := newOpenAIClient(cfg, executor)
		if err != nil {
			return nil, err
		}
		return openai.NewCompleter(client), nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "init completer",
			fmt.Errorf("unknown COMPLETION_PROVIDER %q", cfg.CompletionProvider))
	}
}

func newOpenAIClient(cfg config.Config, executor *resilience.Executor) (*openai.Client, error) {
	client, err := openai.New(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ChatModel:   cfg.OpenAIChatModel,
		EmbedModel:  cfg.OpenAIEmbedModel,
		Temperature: cfg.CompletionTemperature,
		Timeout:     cfg.OpenAITimeout,
	}, executor)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "init openai client", err)
	}
	return client, nil
}

// ProbeDimension embeds a fixed sentence and returns the vector length.
func ProbeDimension(ctx context.Context, embedder ports.Embedder) (int, error) {
	vector, err := embedder.EmbedQuery(ctx, dimensionProbe)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vector) == 0 {
		return 0, domain.WrapError(domain.ErrConfiguration, "probe embedding dimension", errors.New("empty embedding"))
	}
	return len(vector), nil
}

func openIndex(ctx context.Context, cfg config.Config, dimension int, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "flat", "":
		index, err := flat.Load(cfg.VectorIndexPath)
		if err != nil {
			return nil, err
		}
		if index.Dimension() != dimension {
			return nil, domain.WrapError(domain.ErrConfiguration, "open flat index",
				fmt.Errorf("index dimension %d, embedder dimension %d", index.Dimension(), dimension))
		}
		return index, nil
	case "qdrant":
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, dimension, executor)
		if err := client.Sync(ctx); err != nil {
			return nil, fmt.Errorf("sync qdrant collection: %w", err)
		}
		return client, nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "open index",
			fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend))
	}
}
