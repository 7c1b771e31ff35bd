package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)
	ruleSetTTL := config.TTLDuration(cfg.RuleSets.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Content, history and stats come from Postgres when configured;
	// otherwise an in-memory sample set keeps the server playable.
	var (
		content app.ContentRepository
		history app.HistoryRepository
		stats   app.StatsSink
		loader  redisinfra.RuleSetLoader
	)
	if pool != nil {
		content = pgstore.NewContentStore(pool)
		statsStore := pgstore.NewStatsStore(pool)
		history = statsStore
		stats = statsStore
		loader = pgstore.NewRuleSetLoader(pool)
	} else {
		content = memory.NewContentStore(sampleQuestions()...)
		recorder := memory.NewStatsRecorder()
		history = recorder
		stats = recorder
		loader = memory.NewStaticRuleSetLoader(sampleRuleSets())
	}

	var ruleSets app.RuleSetRepository
	if redisClient != nil {
		ruleSets = redisinfra.NewRuleSetRepository(redisClient, loader, ruleSetTTL)
	} else {
		ruleSets = memory.NewRuleSetRepository(loader, ruleSetTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	service := app.NewService(sessions, content, history, ruleSets, stats)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleRuleSets and sampleQuestions provide a minimal playable data set
// for runs without Postgres.
func sampleRuleSets() map[string]domain.RuleSetConfig {
	return map[string]domain.RuleSetConfig{
		"daily": {
			Slug:                "daily",
			Name:                "Daily quiz",
			Active:              true,
			TimerSeconds:        20,
			SelectionMode:       domain.SelectionAuto,
			AllowedDifficulties: []int{1, 2},
			Quotas:              map[int]int{1: 2, 2: 1},
			Scoring: domain.ScoringConfig{
				BasePoints:      10,
				BonusMode:       domain.BonusAdd,
				DifficultyBonus: map[int]float64{2: 5},
			},
		},
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswer: "2", DifficultyLevel: 1, Published: true},
		{ID: 2, Text: "Which planet is closest to the sun?", Answers: []string{"Mercury", "Venus", "Mars"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
		{ID: 3, Text: "What is the square root of 144?", Answers: []string{"11", "12", "14"}, CorrectAnswer: "2", DifficultyLevel: 2, Published: true},
	}
}
