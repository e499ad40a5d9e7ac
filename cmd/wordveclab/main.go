package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/embeddinglab/wordvec-lab/internal/events"
	"github.com/embeddinglab/wordvec-lab/internal/history"
	"github.com/embeddinglab/wordvec-lab/internal/ingest"
	"github.com/embeddinglab/wordvec-lab/internal/rankcache"
	"github.com/embeddinglab/wordvec-lab/internal/session"
	"github.com/embeddinglab/wordvec-lab/internal/session/handler"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/health"
	"github.com/embeddinglab/wordvec-lab/pkg/logger"
	"github.com/embeddinglab/wordvec-lab/pkg/metrics"
	"github.com/embeddinglab/wordvec-lab/pkg/middleware"
	"github.com/embeddinglab/wordvec-lab/pkg/postgres"
	pkgredis "github.com/embeddinglab/wordvec-lab/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting embedding lab service",
		"port", cfg.Server.Port,
		"burst_deadline", cfg.Session.BurstDeadline,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sess := session.New(cfg.Session, cfg.Training, m)

	var redisClient *pkgredis.Client
	var rankCache *rankcache.Cache
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, ranking cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			rankCache = rankcache.New(redisClient, cfg.Redis, m)
			slog.Info("ranking cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	var pgClient *postgres.Client
	var historyStore *history.Store
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, rank history disabled", "error", err)
		} else {
			defer pgClient.Close()
			historyStore = history.New(pgClient)
			if err := historyStore.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure rank history schema", "error", err)
				os.Exit(1)
			}
			sess.SetRankSink(historyStore)
			slog.Info("rank history store enabled",
				"host", cfg.Postgres.Host,
				"database", cfg.Postgres.Database,
			)
		}
	}

	if cfg.Kafka.Enabled {
		publisher := events.NewPublisher(cfg.Kafka)
		defer publisher.Close()
		sess.SetBurstSink(publisher)
		slog.Info("burst event publisher started", "topic", cfg.Kafka.Topics.TrainingEvents)

		consumer := ingest.NewConsumer(cfg.Kafka, sess)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("corpus ingest consumer error", "error", err)
			}
		}()
		slog.Info("corpus ingest consumer started", "topic", cfg.Kafka.Topics.CorpusIngest)
	}

	checker := health.NewChecker()
	// Initialization happens through the API itself, so an uninitialized
	// session is still ready to serve.
	checker.Register("session", func(ctx context.Context) health.ComponentHealth {
		if sess.Ready() {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "awaiting init"}
	})
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "unavailable at startup"}
			}
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if cfg.Postgres.Enabled {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if pgClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "unavailable at startup"}
			}
			if err := pgClient.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	h := handler.New(sess, rankCache, historyStore)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("embedding lab service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("embedding lab service stopped")
}
