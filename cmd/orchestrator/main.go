// Command orchestrator is the thin process entrypoint: it wires every
// external collaborator (Redis, Postgres, Qdrant, the model providers, the
// tool registry) into an orchestrator.Orchestrator and exposes handle_turn
// over HTTP. It owns no orchestration logic of its own — see
// internal/orchestrator for the node graph itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	oai "github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/config"
	"github.com/holidai/agentcore/internal/ltm"
	anthropicmodel "github.com/holidai/agentcore/internal/model/anthropic"
	"github.com/holidai/agentcore/internal/model/middleware"
	"github.com/holidai/agentcore/internal/orchestrator"
	"github.com/holidai/agentcore/internal/rfi"
	"github.com/holidai/agentcore/internal/session"
	"github.com/holidai/agentcore/internal/stm"
	"github.com/holidai/agentcore/internal/telemetry"
	"github.com/holidai/agentcore/internal/toolclient"
	"github.com/holidai/agentcore/internal/tripplan"
	"github.com/holidai/agentcore/internal/worker"
)

func main() {
	var (
		httpPortF = flag.String("http-port", "8080", "HTTP port the turn endpoint listens on")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}

	orch, cleanup, err := build(ctx, cfg)
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/turns", handleTurn(ctx, orch))

	srv := &http.Server{Addr: ":" + *httpPortF, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf(ctx, "listening on :%s", *httpPortF)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, err)
		}
	case <-sigc:
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// turnRequest is the HTTP body for one handle_turn call (spec §6).
type turnRequest struct {
	UserEmail   string `json:"user_email"`
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
}

func handleTurn(parent context.Context, orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserMessage == "" {
			http.Error(w, "user_message is required", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
		defer cancel()
		ctx = log.WithContext(ctx, log.Context(parent))

		resp, err := orch.HandleTurn(ctx, req.UserEmail, req.SessionID, req.UserMessage)
		if err != nil {
			log.Error(ctx, err)
			http.Error(w, "turn failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// build constructs every external collaborator from cfg and assembles the
// Orchestrator. The returned cleanup closes pooled connections.
func build(ctx context.Context, cfg config.Config) (*orchestrator.Orchestrator, func(), error) {
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{Host: cfg.QdrantHost, Port: cfg.QdrantPort})
	if err != nil {
		return nil, nil, err
	}

	anthropicSDK := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicAPIKey))
	rawModel, err := anthropicmodel.New(&anthropicSDK.Messages, anthropicmodel.Options{
		DefaultModel: cfg.AnthropicModel,
		SmallModel:   cfg.AnthropicModel,
		MaxTokens:    4096,
		Temperature:  0.3,
	})
	if err != nil {
		return nil, nil, err
	}
	mainModel := middleware.NewAdaptiveRateLimiter(60000, 120000).Wrap(rawModel)

	oaiClient := oai.NewClient(oaioption.WithAPIKey(cfg.OpenAIAPIKey))
	embedder := ltm.NewOpenAIEmbedder(&oaiClient, cfg.EmbeddingModel)

	ltmStore := ltm.New(ltm.NewQdrantCollection(qdrantClient), embedder)
	if err := ltmStore.EnsureCollection(ctx); err != nil {
		return nil, nil, err
	}

	stmStore := stm.New(redisClient, stm.NewModelSummarizer(mainModel))
	tripplanStore := tripplan.New(pgPool)

	registry := toolclient.Registry{
		agentstate.WorkerFlight:      worker.FlightTools,
		agentstate.WorkerHotel:       worker.HotelTools,
		agentstate.WorkerVisa:        worker.VisaTools,
		agentstate.WorkerTripAdvisor: worker.TripAdvisorTools,
		agentstate.WorkerUtilities:   worker.UtilitiesTools,
	}
	tools := toolclient.New(toolclient.Options{
		BaseURL:  cfg.ToolServiceBaseURL,
		Registry: registry,
		Timeout:  cfg.ToolCallTimeout,
		RetryMax: 3,
	})

	piiClient := rfi.NewHTTPPIIClient(cfg.PIIEndpointBaseURL, cfg.PIIModel)

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	orch := orchestrator.New(orchestrator.Deps{
		Model:           mainModel,
		PIIClient:       piiClient,
		Tools:           tools,
		STM:             stmStore,
		LTM:             ltmStore,
		TripPlan:        tripplanStore,
		Sessions:        session.NewStore(),
		Logger:          logger,
		Metrics:         metrics,
		Tracer:          tracer,
		RecursionBudget: cfg.RecursionBudget,
		RequestDeadline: cfg.RequestDeadline,
	})

	cleanup := func() {
		pgPool.Close()
		_ = redisClient.Close()
	}
	return orch, cleanup, nil
}
