package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mikeydub/go-union/env"
	"github.com/mikeydub/go-union/middleware"
	"github.com/mikeydub/go-union/publicapi"
	"github.com/mikeydub/go-union/service/auction"
	"github.com/mikeydub/go-union/service/discrepancy"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/multichain/indexer"
	"github.com/mikeydub/go-union/service/order"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/service/persist/postgres"
	"github.com/mikeydub/go-union/service/redis"
	sentryutil "github.com/mikeydub/go-union/service/sentry"
	"github.com/mikeydub/go-union/service/throttle"
	"github.com/mikeydub/go-union/util"
	"github.com/mikeydub/go-union/validate"
)

const (
	storeMemory   = "memory"
	storeRedis    = "redis"
	storePostgres = "postgres"
)

// Init configures the process and builds the HTTP handler. The returned function stops background
// work and must be called on shutdown.
func Init() (*gin.Engine, func()) {
	setDefaults()

	logger.InitWithDefaults(env.GetString("ENV"))
	initSentry()

	deps, err := newDependencies(context.Background())
	if err != nil {
		logger.For(nil).Fatalf("failed to initialize: %s", err)
	}

	deps.detector.Start()
	return CoreInit(deps), deps.detector.Stop
}

// InitReconciler configures the process for a batch job and builds a reconciler over the configured
// chains and enrichment store
func InitReconciler(ctx context.Context) (*enrichment.Reconciler, error) {
	setDefaults()

	logger.InitWithDefaults(env.GetString("ENV"))
	initSentry()

	router, err := newChainRouter()
	if err != nil {
		return nil, err
	}

	repo, err := newRepository(ctx, env.GetString("ENRICHMENT_STORE"))
	if err != nil {
		return nil, err
	}

	store := enrichment.NewStore(repo, order.NewResolver(router, 0))
	return enrichment.NewReconciler(store, router, env.GetStringList("ORDER_ORIGINS")), nil
}

// Dependencies are the services the handlers are built from
type Dependencies struct {
	api         *publicapi.PublicAPI
	events      *enrichment.OrderEventHandler
	reconciler  *enrichment.Reconciler
	detector    *discrepancy.Detector
	limiter     *middleware.KeyRateLimiter
	internalKey string
}

// CoreInit initializes core server functionality. This is abstracted
// so the test server can also utilize it
func CoreInit(deps *Dependencies) *gin.Engine {
	logger.For(nil).Info("initializing server...")

	if env.GetString("ENV") != "production" {
		gin.SetMode(gin.DebugMode)
		logrus.SetLevel(logrus.DebugLevel)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.GinContextToContext(), middleware.Sentry(false), middleware.HandleCORS(), middleware.ErrLogger())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		logger.For(nil).Info("registering validation")
		validate.RegisterCustomValidators(v)
	}

	return handlersInit(router, deps)
}

func setDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("PORT", 4000)
	viper.SetDefault("VERSION", "")
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("SENTRY_TRACES_SAMPLE_RATE", 0.2)
	viper.SetDefault("POSTGRES_HOST", "0.0.0.0")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "postgres")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("REDIS_PASS", "")
	viper.SetDefault("ENABLED_CHAINS", "ETHEREUM,POLYGON,TEZOS,FLOW,SOLANA")
	viper.SetDefault("INDEXER_URLS", "ETHEREUM=http://localhost:8081,POLYGON=http://localhost:8082,TEZOS=http://localhost:8083,FLOW=http://localhost:8084,SOLANA=http://localhost:8085")
	viper.SetDefault("INDEXER_TIMEOUT_SECONDS", 30)
	viper.SetDefault("AUCTION_CONTRACTS", "")
	viper.SetDefault("ORDER_ORIGINS", "")
	viper.SetDefault("ENRICHMENT_STORE", storeRedis)
	viper.SetDefault("INTERNAL_API_KEY", "")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("REPLACEMENT_TIMEOUT_SECONDS", 3)
	viper.SetDefault("RECONCILE_THROTTLE_SECONDS", 300)
	viper.SetDefault("DISCREPANCY_WORKERS", discrepancy.DefaultConfig.Workers)
	viper.SetDefault("DISCREPANCY_BUFFER_SIZE", discrepancy.DefaultConfig.BufferSize)

	viper.AutomaticEnv()

	env.RegisterValidation("ENRICHMENT_STORE", fmt.Sprintf("required,oneof=%s %s %s", storeMemory, storeRedis, storePostgres))
	env.RegisterValidation("INTERNAL_API_KEY", "required")

	util.MustExist("ENABLED_CHAINS")
	if env.GetString("ENV") != "local" {
		env.RegisterValidation("SENTRY_DSN", "required")
		util.VarNotSetTo("SENTRY_DSN", "")
		util.VarNotSetTo("INTERNAL_API_KEY", "")
	}
}

func initSentry() {
	if env.GetString("ENV") == "local" {
		logger.For(nil).Info("skipping sentry init")
		return
	}

	logger.For(nil).Info("initializing sentry...")

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              env.GetString("SENTRY_DSN"),
		Environment:      env.GetString("ENV"),
		TracesSampleRate: env.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
		Release:          env.GetString("VERSION"),
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return sentryutil.UpdateErrorFingerprints(event, hint)
		},
	})

	if err != nil {
		logger.For(nil).Fatalf("failed to start sentry: %s", err)
	}
}

func newDependencies(ctx context.Context) (*Dependencies, error) {
	router, err := newChainRouter()
	if err != nil {
		return nil, err
	}

	contracts, err := auction.ParseEscrowContracts(env.GetString("AUCTION_CONTRACTS"))
	if err != nil {
		return nil, err
	}

	repo, err := newRepository(ctx, env.GetString("ENRICHMENT_STORE"))
	if err != nil {
		return nil, err
	}

	origins := env.GetStringList("ORDER_ORIGINS")
	resolver := order.NewResolver(router, 0)
	store := enrichment.NewStore(repo, resolver)
	reconciler := enrichment.NewReconciler(store, router, origins)
	events := enrichment.NewOrderEventHandler(store, router, origins).
		WithReplacementTimeout(time.Duration(env.GetInt("REPLACEMENT_TIMEOUT_SECONDS")) * time.Second)

	// Redis backs the shared throttles; a process-local store runs without them
	var throttler *throttle.Locker
	var limiter *middleware.KeyRateLimiter
	if env.GetString("ENRICHMENT_STORE") != storeMemory {
		throttler = throttle.NewThrottleLocker(redis.NewCache(redis.ReconcileThrottleCache), time.Duration(env.GetInt("RECONCILE_THROTTLE_SECONDS"))*time.Second)
		if perMinute := env.GetInt("RATE_LIMIT_PER_MINUTE"); perMinute > 0 {
			limiter = middleware.NewKeyRateLimiter(int64(perMinute), time.Minute, redis.NewCache(redis.APIRateLimitersCache))
		}
	}

	detector := discrepancy.NewDetector(discrepancy.Config{
		Workers:    env.GetInt("DISCREPANCY_WORKERS"),
		BufferSize: env.GetInt("DISCREPANCY_BUFFER_SIZE"),
	}, reconcileStale(reconciler, throttler))

	return &Dependencies{
		api:         publicapi.New(router, store, resolver, auction.NewOverlay(router, contracts), detector),
		events:      events,
		reconciler:  reconciler,
		detector:    detector,
		limiter:     limiter,
		internalKey: env.GetString("INTERNAL_API_KEY"),
	}, nil
}

// newChainRouter routes every enabled chain to the indexer configured for it in INDEXER_URLS
func newChainRouter() (*multichain.Router, error) {
	enabled, err := persist.ParseChains(env.GetStringList("ENABLED_CHAINS"))
	if err != nil {
		return nil, err
	}

	urls, err := parseIndexerURLs(env.GetStringList("INDEXER_URLS"))
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   time.Duration(env.GetInt("INDEXER_TIMEOUT_SECONDS")) * time.Second,
		Transport: sentryutil.NewTracingTransport(http.DefaultTransport, false),
	}

	adapters := make(map[persist.Chain]multichain.ChainAdapters, len(urls))
	for chain, u := range urls {
		adapters[chain] = indexer.NewChainAdapters(httpClient, u, chain)
	}

	return multichain.NewRouter(enabled, adapters)
}

// parseIndexerURLs parses CHAIN=url pairs
func parseIndexerURLs(pairs []string) (map[persist.Chain]string, error) {
	urls := make(map[persist.Chain]string, len(pairs))
	for _, pair := range pairs {
		name, u, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("invalid indexer url '%s', expected CHAIN=url", pair)
		}
		chain, err := persist.ParseChain(name)
		if err != nil {
			return nil, err
		}
		urls[chain] = strings.TrimSpace(u)
	}
	return urls, nil
}

func newRepository(ctx context.Context, kind string) (enrichment.Repository, error) {
	switch kind {
	case storeMemory:
		logger.For(ctx).Warn("using a process-local enrichment store")
		return enrichment.NewMemoryRepository(), nil
	case storeRedis:
		return enrichment.NewRedisRepository(redis.NewCache(redis.EnrichmentCache)), nil
	case storePostgres:
		pool, err := postgres.NewPgxClient(ctx, postgres.WithAppName("union"))
		if err != nil {
			return nil, err
		}
		return enrichment.NewPostgresRepository(pool), nil
	}
	return nil, fmt.Errorf("unknown enrichment store '%s'", kind)
}
