package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/catalog"
	"github.com/psds-microservice/chat-orchestrator/internal/chat"
	"github.com/psds-microservice/chat-orchestrator/internal/config"
	"github.com/psds-microservice/chat-orchestrator/internal/database"
	"github.com/psds-microservice/chat-orchestrator/internal/handback"
	"github.com/psds-microservice/chat-orchestrator/internal/handler"
	"github.com/psds-microservice/chat-orchestrator/internal/llm"
	"github.com/psds-microservice/chat-orchestrator/internal/policy"
	"github.com/psds-microservice/chat-orchestrator/internal/presence"
	"github.com/psds-microservice/chat-orchestrator/internal/push"
	"github.com/psds-microservice/chat-orchestrator/internal/queue"
	"github.com/psds-microservice/chat-orchestrator/internal/router"
	"github.com/psds-microservice/chat-orchestrator/internal/routing"
	"github.com/psds-microservice/chat-orchestrator/internal/service"
	"github.com/psds-microservice/chat-orchestrator/internal/tools"
)

// API приложение: HTTP сервер + фоновые циклы (hand-back, presence sweep).
type API struct {
	cfg        *config.Config
	httpSrv    *http.Server
	supervisor *handback.Supervisor
	tracker    *presence.Tracker
	publisher  *push.Publisher
}

// NewAPI собирает приложение для режима api.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	conversations := service.NewConversationService(db)
	store := catalog.NewStore(db)
	executor := tools.NewExecutor(store, store, store, tools.StoreInfo{
		Name:    cfg.Store.Name,
		Address: cfg.Store.Address,
		Hotline: cfg.Store.Hotline,
		Hours:   cfg.Store.Hours,
	})

	aiEnabled := cfg.AI.Enabled
	if cfg.LLM.BaseURL == "" {
		if aiEnabled {
			log.Println("application: LLM_BASE_URL not set, routing everything to staff")
		}
		aiEnabled = false
	}
	gateway := llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	aiRouter := routing.NewRouter(routing.Config{
		Enabled: aiEnabled,
		Thresholds: policy.Thresholds{
			Auto:    cfg.AI.AutoThreshold,
			Suggest: cfg.AI.SuggestThreshold,
		},
		HistoryLimit:  cfg.AI.HistoryLimit,
		MaxReplyWords: cfg.AI.MaxReplyWords,
		StoreContext:  storeContext(cfg),
	}, gateway, executor, conversations, conversations)

	publisher := push.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicChat)
	tracker := presence.NewTracker(db, cfg.Presence.MaxWorkload)
	handoffQueue := queue.New(db, tracker, publisher)

	supervisor := handback.NewSupervisor(handback.Deps{
		Conversations: conversations,
		Queue:         handoffQueue,
		Presence:      tracker,
		Push:          publisher,
	}, cfg.Handback.Grace, cfg.Handback.SweepEvery)

	chatSvc := chat.NewService(chat.Deps{
		Conversations: conversations,
		Router:        aiRouter,
		Queue:         handoffQueue,
		Supervisor:    supervisor,
		Presence:      tracker,
		Push:          publisher,
	})

	h := router.New(
		handler.NewChatHandler(chatSvc),
		handler.NewQueueHandler(handoffQueue),
		handler.NewPresenceHandler(tracker),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:        cfg,
		httpSrv:    httpSrv,
		supervisor: supervisor,
		tracker:    tracker,
		publisher:  publisher,
	}, nil
}

// storeContext собирает блок с данными магазина для системного промпта.
func storeContext(cfg *config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tên cửa hàng: %s\n", cfg.Store.Name)
	if cfg.Store.Address != "" {
		fmt.Fprintf(&b, "Địa chỉ: %s\n", cfg.Store.Address)
	}
	if cfg.Store.Hotline != "" {
		fmt.Fprintf(&b, "Hotline: %s\n", cfg.Store.Hotline)
	}
	fmt.Fprintf(&b, "Giờ mở cửa: %s", cfg.Store.Hours)
	return b.String()
}

// Run запускает HTTP сервер и фоновые циклы, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  API v1:        %s/api/v1/", base)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	bg, stopBg := context.WithCancel(context.Background())
	go a.supervisor.Run(bg)
	go a.presenceSweep(bg)

	<-ctx.Done()
	stopBg()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.publisher.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	return nil
}

// presenceSweep переводит в offline сотрудников без heartbeat.
func (a *API) presenceSweep(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Presence.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.tracker.SweepInactive(ctx, a.cfg.Presence.InactiveAfter)
			if err != nil {
				log.Printf("presence sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("presence sweep: %d staff marked offline", n)
			}
		}
	}
}
