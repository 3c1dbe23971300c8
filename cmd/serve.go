package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"posbridge/config"
	"posbridge/internal/bridge"
	"posbridge/internal/catalog"
	"posbridge/internal/events"
	"posbridge/internal/gateway"
	"posbridge/internal/iiko"
	"posbridge/internal/metrics"
	"posbridge/internal/postgres"
	"posbridge/internal/rabbitmq"
	"posbridge/internal/tenant"
	"posbridge/internal/webhook"
	"posbridge/pkg/logger"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront and payment webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDRESS)")
	return cmd
}

func runServe(cfg *config.Config) error {
	log := logger.L()
	log.Info("🚀 Starting posbridge...")

	tenants, skipped, err := config.LoadTenants(cfg.Tenants)
	if err != nil {
		return fmt.Errorf("failed to load tenants: %w", err)
	}
	for _, city := range skipped {
		log.Warnf("Tenant %s skipped: missing iiko credentials", city)
	}
	log.Infof("✓ Tenants loaded: %d (default %q)", len(tenants.Tenants), tenants.DefaultCity)

	reg := metrics.NewRegistry()

	source, closeSource, err := catalogSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()
	catalogCache := catalog.NewCache(source, cfg.Catalog.TTL)
	catalogCache.OnRefresh = reg.CatalogRefreshed
	log.Infof("✓ Catalog source: %s (ttl %s)", cfg.Catalog.Mode, cfg.Catalog.TTL)

	tokens := iiko.NewTokenCache(cfg.Iiko.TokenTTL)
	pos := iiko.NewClient(cfg.Iiko.BaseURL, tokens, cfg.Iiko.TokenTimeout, cfg.Iiko.OrderTimeout, reg)

	publisher, err := syncPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	engine := bridge.NewEngine(
		tenant.NewResolver(tenants),
		&bridge.CacheStore{Catalog: catalogCache},
		pos,
		publisher,
		reg,
		bridge.ReconcileWindow{
			Lookback: cfg.Iiko.ReconcileLookback,
			Ahead:    cfg.Iiko.ReconcileAhead,
			Rows:     cfg.Iiko.SearchRows,
		},
	)

	opts := webhook.Options{
		Orders:              engine,
		Metrics:             reg,
		Secrets:             cfg.Storefront.Secrets(),
		PaymentCreatesOrder: cfg.Gateway.PaymentCreatesOrder,
		RequestTimeout:      cfg.Server.RequestTimeout,
	}
	if token := cfg.Gateway.Token(); token != "" {
		opts.Gateway = gateway.NewClient(cfg.Gateway.APIURL, token, cfg.Gateway.Currency, cfg.Gateway.SuccessURL, cfg.Gateway.Timeout)
	} else {
		log.Warn("Gateway token not set: /api/init-payment will answer 500")
	}
	notifier := gateway.NewNotifier(cfg.Storefront.Login, cfg.Storefront.Secret, cfg.Storefront.NotificationURL, cfg.Gateway.Timeout)
	if !notifier.HasSecret() {
		log.Warn("TILDA_SECRET not set: payment notifications will carry an unverifiable signature")
	}
	opts.Notifier = notifier
	if len(opts.Secrets) == 0 {
		log.Warn("TILDA_WEBHOOK_SECRET not set: order webhook is unauthenticated")
	}

	server := webhook.NewServer(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("✓ Listening on %s", cfg.Server.Address)
		if err := server.Listen(cfg.Server.Address); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout+5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("✓ Stopped gracefully")
	return nil
}

// catalogSource picks the mapping source for the configured mode. The
// returned func releases whatever the source holds open.
func catalogSource(cfg *config.Config) (catalog.Source, func(), error) {
	noop := func() {}
	switch cfg.Catalog.Mode {
	case "embedded":
		return catalog.NewEmbeddedSource(), noop, nil
	case "file":
		return catalog.FileSource{Path: cfg.Catalog.File}, noop, nil
	case "csv_url":
		return catalog.NewCSVURLSource(cfg.Catalog.CSVURL, cfg.Catalog.Timeout), noop, nil
	case "postgres":
		pg, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		logger.L().Infof("✓ Connected to Postgres %s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)
		return postgres.NewCatalogRepo(pg), func() { _ = pg.Close() }, nil
	default:
		return catalog.NewJSONSource(cfg.Catalog.JSON), noop, nil
	}
}

// syncPublisher fans sync events out to every configured transport.
func syncPublisher(cfg *config.Config) (events.Publisher, error) {
	var pubs []events.Publisher
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		logger.L().Infof("✓ Publishing sync events to RabbitMQ queue %s", cfg.RabbitMQ.SyncQueue)
		pubs = append(pubs, p)
	}
	if brokers := strings.TrimSpace(cfg.Kafka.Brokers); brokers != "" {
		logger.L().Infof("✓ Publishing sync events to Kafka topic %s", cfg.Kafka.Topic)
		pubs = append(pubs, events.NewKafkaPublisher(brokers, cfg.Kafka.Topic))
	}
	if len(pubs) == 0 {
		return events.NoopPublisher{}, nil
	}
	return events.NewMultiPublisher(pubs...), nil
}
