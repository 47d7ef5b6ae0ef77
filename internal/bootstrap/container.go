package bootstrap

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"compliance-rag-be/internal/config"
	"compliance-rag-be/internal/controller"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/implementation"
	"compliance-rag-be/internal/service"
	"compliance-rag-be/pkg/cache"
	"compliance-rag-be/pkg/embedding"
	"compliance-rag-be/pkg/esearch"
	"compliance-rag-be/pkg/events"
	"compliance-rag-be/pkg/graph"
	"compliance-rag-be/pkg/llm/openai"
	"compliance-rag-be/pkg/rag/citation"
	"compliance-rag-be/pkg/rag/pipeline"
	"compliance-rag-be/pkg/rag/prompt"
	"compliance-rag-be/pkg/rag/retriever"
	"compliance-rag-be/pkg/rag/router"
	"compliance-rag-be/pkg/retry"
)

const embedCacheTTL = time.Hour

type Container struct {
	// Controllers
	ChatController    controller.IChatController
	SessionController controller.ISessionController
	HealthController  controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ArchiverService service.IArchiverService

	Logger logger.ILogger

	db          *gorm.DB
	rdb         *redis.Client
	graphClient graph.IGraphClient
	pubSub      *gochannel.GoChannel
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(
		cfg.App.LogFilePath,
		cfg.App.LogLevel,
		cfg.App.Environment == "production",
		cfg.App.LogRotationMB,
		cfg.App.LogRetentionDays,
	)

	// Per-request streaming traces are chatty; they get their own file
	// next to the main log and stay off the console.
	chatLogPath := filepath.Join(filepath.Dir(cfg.App.LogFilePath), "chat.log")
	chatLogger := logger.NewIsolatedLogger(chatLogPath, cfg.App.LogLevel, cfg.App.LogRotationMB, cfg.App.LogRetentionDays)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Storage Backends
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
	} else {
		log.Println("[INFO] Redis cache disabled, running on row store and search index only")
	}

	esClient, err := esearch.NewClient(esearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Timeout:   cfg.Elasticsearch.Timeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize Elasticsearch client: %v", err)
	}

	var graphClient graph.IGraphClient
	if cfg.Neo4j.Enabled {
		client, err := graph.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Timeout)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Neo4j driver: %v (graph retrieval degraded)", err)
		} else {
			graphClient = client
		}
	} else {
		log.Println("[INFO] Neo4j disabled, graph retrieval degraded to parse-only")
	}

	// 4. Model Providers
	llmProvider := openai.NewProvider(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Timeout,
		retry.Policy{MaxAttempts: cfg.LLM.MaxRetries, InitialDelay: time.Second, Multiplier: 2.0},
	)
	embeddingProvider := embedding.NewHTTPProvider(
		cfg.Embedding.BaseURL,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		cfg.Embedding.Timeout,
	)

	// Query vectors are memoized so repeated questions skip the
	// embedding round trip.
	embedCache := cache.NewMemory(1024, embedCacheTTL)
	embedFn := cache.Memoize(embedCache, "embed", cfg.Embedding.Model, embedCacheTTL,
		func(ctx context.Context, texts []string) ([][]float32, error) {
			return embeddingProvider.Embed(ctx, texts)
		})

	// 5. Retrieval Components
	textRetriever := retriever.NewHybridRetriever(esClient, embedFn, retriever.Settings{
		Index: cfg.Elasticsearch.KBIndex,
	}, sysLogger)

	promptBuilder := prompt.NewBuilder(cfg.Prompts.System, cfg.Prompts.KnowledgeEnhanced)

	matcher := citation.NewLLMMatcher(llmProvider, citation.Settings{
		Model:          cfg.LLM.KnowledgeMatching.Model,
		Temperature:    cfg.LLM.KnowledgeMatching.Temperature,
		MaxTokens:      cfg.LLM.KnowledgeMatching.MaxTokens,
		PromptTemplate: cfg.Prompts.KnowledgeMatching,
	}, chatLogger)

	textPipe := pipeline.NewTextPipeline(llmProvider, textRetriever, promptBuilder, matcher, pipeline.TextSettings{
		Chat:                      scenarioParams(cfg.LLM.ChatGeneration),
		Intent:                    scenarioParams(cfg.LLM.IntentRecognition),
		IntentPrompt:              cfg.Prompts.IntentRecognition,
		IntentParseEnabled:        cfg.Features.IntentParser,
		KnowledgeRetrievalEnabled: cfg.Features.KnowledgeRetrieval,
		CitationEnabled:           cfg.Features.KnowledgeMatching,
	}, chatLogger)

	directPipe := pipeline.NewTextPipeline(llmProvider, nil, promptBuilder, nil, pipeline.TextSettings{
		Chat: scenarioParams(cfg.LLM.ChatGeneration),
	}, chatLogger)

	graphPipe := pipeline.NewGraphPipeline(llmProvider, esClient, graphClient, pipeline.GraphSettings{
		Intent:        scenarioParams(cfg.LLM.GraphIntent),
		Cypher:        scenarioParams(cfg.LLM.GraphCypher),
		Summary:       scenarioParams(cfg.LLM.GraphSummary),
		IntentPrompt:  cfg.Prompts.GraphIntent,
		CypherPrompt:  cfg.Prompts.GraphCypher,
		SummaryPrompt: cfg.Prompts.GraphSummary,
		SchemaHint:    cfg.Prompts.GraphSchema,
		ExamplesIndex: cfg.Elasticsearch.CypherIndex,
		ExampleTopK:   cfg.Elasticsearch.CypherTopK,
	}, chatLogger)

	intentRouter := router.NewLLMRouter(llmProvider, router.Settings{
		Model:          cfg.LLM.Router.Model,
		Temperature:    cfg.LLM.Router.Temperature,
		MaxTokens:      cfg.LLM.Router.MaxTokens,
		SystemPrompt:   cfg.Prompts.RouterSystem,
		PromptTemplate: cfg.Prompts.Router,
		MaxAttempts:    cfg.LLM.MaxRetries,
	}, chatLogger)

	// 6. Repositories
	sessionRepo := implementation.NewSessionRepository(db, rdb, esClient, cfg.Elasticsearch.HistoryIndex, sysLogger)
	messageRepo := implementation.NewMessageRepository(rdb, esClient, cfg.Elasticsearch.HistoryIndex, sysLogger)

	// 7. Services
	publisherService := service.NewPublisherService(pubSub, events.TopicChatTranscript)
	archiverService := service.NewArchiverService(pubSub, messageRepo, sysLogger)

	chatService := service.NewChatService(
		intentRouter,
		graphPipe,
		textPipe,
		directPipe,
		messageRepo,
		publisherService,
		sysLogger,
	)
	sessionService := service.NewSessionService(sessionRepo, messageRepo, sysLogger)
	healthService := service.NewHealthService(db, rdb, esClient, graphClient)

	// 8. Controllers
	return &Container{
		ChatController:    controller.NewChatController(chatService, sysLogger),
		SessionController: controller.NewSessionController(sessionService),
		HealthController:  controller.NewHealthController(healthService),

		ArchiverService: archiverService,

		Logger: sysLogger,

		db:          db,
		rdb:         rdb,
		graphClient: graphClient,
		pubSub:      pubSub,
	}
}

// Close tears down driver connections. Call after the HTTP server has
// stopped accepting requests.
func (c *Container) Close(ctx context.Context) {
	if err := c.pubSub.Close(); err != nil {
		log.Printf("[WARN] Event bus close: %v", err)
	}
	if c.graphClient != nil {
		if err := c.graphClient.Close(ctx); err != nil {
			log.Printf("[WARN] Graph driver close: %v", err)
		}
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			log.Printf("[WARN] Redis close: %v", err)
		}
	}
	if sqlDB, err := c.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("[WARN] Row store close: %v", err)
		}
	}
	c.Logger.Sync()
}

func scenarioParams(s config.Scenario) pipeline.ModelParams {
	return pipeline.ModelParams{
		Model:       s.Model,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}
}
