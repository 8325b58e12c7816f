package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
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
	authSvc, err := newAuthService(cfg)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var db *bun.DB
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		db, err = openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := runMigrations(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.AttemptRepository
	switch cfg.AttemptStore() {
	case config.StorePostgres:
		store = postgres.NewAttemptStore(db)
	case config.StoreRedis:
		store = infraredis.NewAttemptStore(redisClient)
	case config.StoreMemory:
		store = memory.NewAttemptStore()
	default:
		return fmt.Errorf("unknown attempt store %q", cfg.AttemptStore())
	}
	log.Printf("attempt store: %s", cfg.AttemptStore())

	service := app.NewAttemptService(store, quizRepo,
		app.WithAwayLimit(config.TTLDuration(cfg.Attempt.AwayLimit, app.DefaultAwayLimit)))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, authSvc, cfg.CORS.Origins),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived attempt websockets.
	}

	go func() {
		log.Printf("starting attempt service on :%s", finalPort)
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

// sampleQuizzes backs memory mode; with Postgres configured quizzes come from the quizzes table.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:          "quiz-1",
			Title:       "Warm-up",
			Description: "Two quick questions",
			Duration:    10,
			Published:   true,
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "Which of these are prime?",
					Type: domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4", Correct: false},
						{ID: "o3", Text: "5", Correct: true},
					},
					Points: 2,
				},
				{
					ID:   "q2",
					Text: "2 + 2 = 4",
					Type: domain.QuestionTrueFalse,
					Options: []domain.Option{
						{ID: "true", Text: "True", Correct: true},
						{ID: "false", Text: "False", Correct: false},
					},
					Points: 2,
				},
			},
		},
	}
}
