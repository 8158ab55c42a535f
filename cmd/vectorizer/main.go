package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/api"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/store"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termvec/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting vectorizer service",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"kafka_enabled", cfg.Kafka.Enabled,
		"redis_enabled", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("vectorizer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("vectorizer service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	tok, err := tokenizer.FromConfig(cfg.Tokenizer)
	if err != nil {
		return fmt.Errorf("building tokenizer: %w", err)
	}

	checker := health.NewChecker()
	startup := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}

	var snapshots *store.SQLStore
	if cfg.Store.Driver != "" {
		var db *database.Client
		err := resilience.Retry(ctx, "store connect", startup, func() error {
			var err error
			db, err = database.New(cfg.Store)
			return err
		})
		if err != nil {
			return fmt.Errorf("connecting to store: %w", err)
		}
		defer db.Close()
		snapshots = store.New(db, m)
		if err := snapshots.Migrate(ctx); err != nil {
			return err
		}
		checker.Register("store", health.PingCheck(db.Ping, false))
	}

	c, err := loadCorpus(ctx, snapshots, tok, m)
	if err != nil {
		return err
	}
	m.VocabularySize.Set(float64(c.Dictionary().Size()))
	checker.Register("corpus", health.InfoCheck(func() map[string]any {
		st := c.Stats()
		return map[string]any{"documents": st.Documents, "terms": st.Terms, "generation": st.Generation}
	}))

	var simCache api.SimilarityCache
	if cfg.Redis.Enabled {
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "redis connect", startup, func() error {
			var err error
			client, err = pkgredis.NewClient(cfg.Redis)
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, similarity caching disabled", "error", err)
		} else {
			defer client.Close()
			sc := cache.New(client, cfg.Redis, m, cache.WithSettled(c.Settled))
			// Generations restart after a restore, so older keys may collide.
			if err := sc.Invalidate(ctx); err != nil {
				slog.Warn("cache invalidation failed", "error", err)
			}
			simCache = sc
			checker.Register("redis", health.PingCheck(client.Ping, true))
			checker.Register("redis-cache", health.BreakerCheck(func() bool { return !sc.Available() }))
			slog.Info("similarity cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var announcer handler.Announcer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentVectorized)
		defer producer.Close()
		pub := publisher.New(producer, resilience.CircuitBreakerConfig{CallTimeout: cfg.Kafka.WriteTimeout}, m)
		checker.Register("kafka-publisher", health.BreakerCheck(func() bool {
			return pub.State() == resilience.StateOpen
		}))
		announcer = pub
	}
	ingest := handler.New(c, announcer, m)
	h := api.New(c, simCache, m, cfg.Similar.DefaultK, cfg.Similar.MaxK)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, ingest.Ingest, checker, m, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("vectorizer service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Port, reg)
		})
	}
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, ingest.HandleMessage())
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Start(gctx)
		})
		slog.Info("consuming documents from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}
	if snapshots != nil {
		g.Go(func() error {
			return snapshots.Run(gctx, c, cfg.Store.SnapshotInterval, cfg.Store.SnapshotTimeout)
		})
	}
	return g.Wait()
}

func loadCorpus(ctx context.Context, snapshots *store.SQLStore, tok *tokenizer.Tokenizer, m *metrics.Metrics) (*corpus.Corpus, error) {
	if snapshots == nil {
		return corpus.New(tok, corpus.WithMetrics(m))
	}
	snap, found, err := snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if !found {
		slog.Info("no snapshot found, starting with an empty corpus")
		return corpus.New(tok, corpus.WithMetrics(m))
	}
	c, err := corpus.Restore(tok, snap, corpus.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	return c, nil
}
