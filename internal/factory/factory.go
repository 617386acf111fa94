package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"haruup-service/internal/bucketing"
	"haruup-service/internal/client"
	"haruup-service/internal/config"
	chrepo "haruup-service/internal/repository/clickhouse"
	"haruup-service/internal/repository/postgres"
	rediscache "haruup-service/internal/repository/redis"
	"haruup-service/internal/repository/scylla"
	"haruup-service/internal/repository/search"
	"haruup-service/internal/service"
	"haruup-service/internal/tls"
	"haruup-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	postgresClient   *client.PostgresClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	bucketingManager *bucketing.BucketingManager

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	factory.bucketingManager = bucketing.NewBucketingManager(cfg)

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("scylla_enabled", factory.scyllaClient != nil),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("elasticsearch_enabled", factory.esClient != nil),
		util.Bool("clickhouse_enabled", factory.clickhouseClient != nil),
	)

	return factory, nil
}

// initializeClients connects every backend. Redis and PostgreSQL are required everywhere; the
// others are optional outside production and are skipped with a warning when they fail.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	util.Info("Redis client initialized and healthy")

	// PostgreSQL
	pgClient, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = pgClient
	if err := f.postgresClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	util.Info("PostgreSQL client initialized and healthy")

	var initErrors []error

	// ScyllaDB
	if f.config.Scylla.Enabled {
		if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := scylla.NewHistoryRepository(c, f.bucketingManager).EnsureSchema(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla schema: %w", err))
			}
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			if err := chrepo.NewRankingSink(c).EnsureSchema(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse schema: %w", err))
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Optional backend unavailable, continuing without it", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(f.config, f.serviceDeps(), util.Get())
	}
	return f.serviceFactory
}

// serviceDeps leaves optional collaborators as untyped nil when their client is missing.
func (f *Factory) serviceDeps() service.ServiceDeps {
	deps := service.ServiceDeps{
		RateLimits: rediscache.NewRateLimitCache(f.redisClient),
		Progress:   postgres.NewCharacterRepository(f.postgresClient),
		Rankings:   postgres.NewRankingRepository(f.postgresClient),
	}
	if f.scyllaClient != nil {
		deps.History = scylla.NewHistoryRepository(f.scyllaClient, f.bucketingManager)
	}
	if f.esClient != nil {
		deps.Labeler = search.NewLabelRepository(f.esClient, f.config.Ranking.LabelIndex)
	}
	if f.clickhouseClient != nil {
		deps.Sink = chrepo.NewRankingSink(f.clickhouseClient)
	}
	if f.kafkaProducer != nil {
		deps.Publisher = f.kafkaProducer
	}
	return deps
}

// ==============================
// Health Checks
// ==============================

type healthChecker func(ctx context.Context) error

// HealthCheck pings every initialized backend in parallel. Missing required clients are reported.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]healthChecker{}

	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	}
	if f.postgresClient != nil {
		checks["postgres"] = f.postgresClient.HealthCheck
	}
	if f.scyllaClient != nil {
		checks["scylla"] = f.scyllaClient.HealthCheck
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient.HealthCheck
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}

	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			if err := check(gctx); err != nil {
				mu.Lock()
				healthErrors[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if f.redisClient == nil {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}
	if f.postgresClient == nil {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}
	return healthErrors
}

// IsHealthy ignores Kafka, whose outage only delays events.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
			util.Info("PostgreSQL pool closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
