package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jamsession/api/internal/auth"
	"github.com/jamsession/api/internal/config"
	"github.com/jamsession/api/internal/core/lifecycle"
	"github.com/jamsession/api/internal/handler"
	"github.com/jamsession/api/internal/middleware"
	"github.com/jamsession/api/internal/service"
	"github.com/jamsession/api/internal/store"
	ws "github.com/jamsession/api/internal/websocket"
	"github.com/jamsession/api/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the history worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		if cfg.Store.Driver == config.DriverRedis {
			return fmt.Errorf("redis: %w", err)
		}
		log.Warn().Err(err).Msg("redis not available, rate limiting and history queue disabled")
		redisUp = false
	}

	s, err := openStore(ctx, redisClient)
	if err != nil {
		return err
	}
	defer s.Close()

	// History fan-out goes through asynq when Redis is reachable
	var history service.HistoryRecorder = service.NewDirectHistory(s)
	var rateLimiter *middleware.RateLimiter
	if redisUp {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		history = service.NewHistoryQueue(asynqClient, cfg.History.Queue, cfg.History.MaxRetry, history)
		rateLimiter = middleware.NewRateLimiter(redisClient)

		srv := startWorkerServer(redisOpt, s)
		defer srv.Shutdown()
	} else {
		rateLimiter = middleware.NewRateLimiter(nil)
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL())
	validate := handler.NewValidator()

	policy := lifecycle.Policy{AllowDualMembership: cfg.Engine.AllowDualMembership}
	jamService := service.NewJamService(s, history, hub, policy)
	userService := service.NewUserService(s, tokens, cfg.Auth.BcryptCost)

	app := handler.NewApp(handler.Deps{
		Jams:        handler.NewJamHandler(jamService, validate),
		Users:       handler.NewUserHandler(userService, validate),
		Auth:        middleware.NewAuthMiddleware(tokens),
		RateLimiter: rateLimiter,
		Hub:         hub,
		Limits:      cfg.RateLimit,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, redisClient *redis.Client) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewRedisStore(redisClient, cfg.Store.MaxRetries), nil
	}
}

func startWorkerServer(redisOpt asynq.RedisClientOpt, s store.Store) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.History.Concurrency,
		Queues: map[string]int{
			cfg.History.Queue: 1,
		},
	})

	historyWorker := worker.NewHistoryWorker(s)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeJamHistory, historyWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
	return srv
}
