package bootstrap

import (
	"context"
	"log"

	"ai-knowledge-be/internal/config"
	"ai-knowledge-be/internal/controller"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/internal/repository/implementation"
	"ai-knowledge-be/internal/repository/memory"
	"ai-knowledge-be/internal/service"
	"ai-knowledge-be/internal/websocket"
	"ai-knowledge-be/pkg/embedding"
	"ai-knowledge-be/pkg/llm/factory"
	"ai-knowledge-be/pkg/rag/agents"
	"ai-knowledge-be/pkg/rag/persona"
	"ai-knowledge-be/pkg/rag/retrieval"
	"ai-knowledge-be/pkg/rag/workflow"
	"ai-knowledge-be/pkg/safety"
	"ai-knowledge-be/pkg/safety/guardrails"

	pktNats "ai-knowledge-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// Services exposed to the transport layer
	ChatService service.IChatService

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.EmbeddingModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OPENAI (%s)", cfg.Ai.EmbeddingModel)
	}

	llmProvider, err := factory.NewLLMProvider(cfg)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// Safety validation. Without a configured guardrails service every
	// check passes; the engine still records the skip in its trace.
	var validator safety.Validator
	if cfg.Guardrails.Enabled && cfg.Keys.Guardrails != "" {
		validator = guardrails.NewGuardrailsClient(cfg.Keys.Guardrails, cfg.Guardrails.BaseURL)
		log.Printf("[INFO] Safety validation: guardrails (%s)", cfg.Guardrails.BaseURL)
	} else {
		validator = safety.NewNoopValidator()
		log.Printf("[WARN] Safety validation disabled: passing all checks")
	}

	// 3.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)

	var historyStore memory.HistoryStore
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Conversation history disabled", err)
		historyStore = memory.NoopHistoryStore{}
	} else {
		historyStore = memory.NewRedisHistoryStore(rdb)
	}

	sessionRepo := memory.NewSessionRepository()

	// 4. Repositories
	documentRepo := implementation.NewDocumentRepository(db)
	chunkRepo := implementation.NewDocumentChunkRepository(db)

	// 5. RAG Pipeline
	personaManager := persona.NewManager()
	retriever := retrieval.NewVectorRetriever(chunkRepo, sysLogger)
	engine := workflow.NewEngine(
		llmProvider,
		embeddingProvider,
		retriever,
		validator,
		personaManager,
		sysLogger,
	)

	classifier := agents.NewClassifier(llmProvider, sysLogger)
	identifier := agents.NewIdentifier(llmProvider, sysLogger)
	orchestrator := agents.NewOrchestrator(classifier, identifier, engine, sysLogger)

	// 6. Services
	publisherService := service.NewPublisherService(cfg.App.UsageTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.UsageTopic,
		natsPub,
		sysLogger,
	)

	chatService := service.NewChatService(
		engine,
		orchestrator,
		sessionRepo,
		historyStore,
		publisherService,
		sysLogger,
	)
	documentService := service.NewDocumentService(documentRepo, chunkRepo, natsPub, sysLogger)

	// 7. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.StreamLogFilePath)
	wsHub := websocket.NewHub(wsLogger)
	go wsHub.Run()

	return &Container{
		ChatController:     controller.NewChatController(chatService, sysLogger),
		DocumentController: controller.NewDocumentController(documentService),

		ChatService: chatService,

		ConsumerService: consumerService,

		WebSocketHub: wsHub,
	}
}
