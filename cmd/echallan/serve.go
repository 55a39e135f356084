package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irisdrone/echallan/internal/citation"
	"github.com/irisdrone/echallan/internal/config"
	"github.com/irisdrone/echallan/internal/database"
	"github.com/irisdrone/echallan/internal/feed"
	"github.com/irisdrone/echallan/internal/handlers"
	"github.com/irisdrone/echallan/internal/ingest"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/natsserver"
	"github.com/irisdrone/echallan/internal/notify"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/irisdrone/echallan/internal/review"
	"github.com/irisdrone/echallan/internal/rules"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS detection consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(a.cfg, a.log)
		},
	}
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}
	s := store.New(db)
	m := metrics.New()

	cache, err := ruleCache(cfg, log)
	if err != nil {
		return err
	}

	channel := notifyChannel(cfg.Notify)
	dispatcher := notify.NewDispatcher(channel, s, notify.Options{
		SendTimeout:     cfg.Notify.SendTimeout,
		MaxAttempts:     cfg.Notify.MaxAttempts,
		RetryDelay:      cfg.Notify.RetryDelay,
		DefaultRegion:   cfg.Notify.DefaultRegion,
		RateLimitPerMin: cfg.Notify.RateLimitPerMin,
	}, log, m)
	defer dispatcher.Close()
	log.WithField("channel", dispatcher.ChannelName()).Info("Notification channel selected")

	hub := feed.NewHub(log, m)
	go hub.Run()
	defer hub.Stop()
	publishers := []ingest.Publisher{hub}

	// NATS transport: embedded broker or an external one
	var (
		natsConn  *nats.Conn
		natsStats func() natsserver.Stats
	)
	if cfg.NATS.Enabled {
		if cfg.NATS.Embedded {
			ns, err := natsserver.New(natsserver.Config{Port: cfg.NATS.Port, MaxPayload: cfg.NATS.MaxPayload}, log)
			if err != nil {
				return err
			}
			defer ns.Shutdown()
			natsConn = ns.Conn()
			natsStats = ns.GetStats
		} else {
			natsConn, err = nats.Connect(cfg.NATS.URL,
				nats.Name("echallan"),
				nats.ReconnectWait(time.Second),
				nats.MaxReconnects(-1),
			)
			if err != nil {
				return fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
			}
			defer natsConn.Close()
		}
		publishers = append(publishers, ingest.NewIssuedPublisher(natsConn, cfg.NATS.IssuedSubject, log))
	}

	coord := ingest.NewCoordinator(ingest.Deps{
		Logs:       s,
		Matcher:    rules.NewMatcher(rules.NewCatalog(s, cache, log), cfg.Pipeline.DedupeRules),
		Resolver:   ownership.NewResolver(s),
		Issuer:     citation.NewIssuer(s),
		Notifier:   dispatcher,
		Reviews:    review.NewQueue(s),
		Publishers: publishers,
		Log:        log,
		Metrics:    m,
	})

	if natsConn != nil {
		consumer := ingest.NewConsumer(natsConn, coord, ingest.ConsumerOptions{
			Subject:        cfg.NATS.DetectionsSubject,
			QueueGroup:     cfg.NATS.QueueGroup,
			Workers:        cfg.Ingest.Workers,
			QueueSize:      cfg.Ingest.QueueSize,
			RequestTimeout: cfg.Ingest.RequestTimeout,
		}, log, m)
		if err := consumer.Start(); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	h := handlers.New(handlers.Deps{
		Store:     s,
		Processor: coord,
		Auth:      handlers.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Feed:      hub,
		Metrics:   m,
		NATSStats: natsStats,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handlers.NewRouter(h, cfg.IsProduction()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	return nil
}

// ruleCache builds the configured rule cache; nil means no caching.
func ruleCache(cfg *config.Config, log logrus.FieldLogger) (rules.Cache, error) {
	switch cfg.Rules.CacheBackend {
	case "memory":
		return rules.NewMemoryCache(cfg.Rules.CacheTTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			// The catalog falls back to the store on cache errors
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis unreachable, rule lookups will hit the database")
		}
		return rules.NewRedisCache(client, cfg.Rules.CacheTTL), nil
	default:
		return nil, nil
	}
}

// notifyChannel picks the SMS transport once at startup.
func notifyChannel(cfg config.NotifyConfig) notify.Channel {
	if cfg.Provider == "mock" || (cfg.Provider == "auto" && !cfg.TwilioConfigured()) {
		return notify.MockChannel{}
	}
	return notify.NewTwilioChannel(cfg.TwilioSID, cfg.TwilioToken, cfg.FromNumber)
}
