package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"assent/internal/audit"
	"assent/internal/authorize"
	"assent/internal/client"
	"assent/internal/consent"
	"assent/internal/deviceflow"
	"assent/internal/grants"
	authcode "assent/internal/grants/store/authorization-code"
	devicecode "assent/internal/grants/store/device-code"
	grantspg "assent/internal/grants/store/postgres"
	referencetoken "assent/internal/grants/store/reference-token"
	refreshtoken "assent/internal/grants/store/refresh-token"
	"assent/internal/introspection"
	jwttoken "assent/internal/jwt_token"
	"assent/internal/platform/config"
	"assent/internal/platform/httpserver"
	"assent/internal/platform/logger"
	"assent/internal/platform/metrics"
	platformredis "assent/internal/platform/redis"
	"assent/internal/profile"
	"assent/internal/resource"
	"assent/internal/revocation"
	"assent/internal/token"
	httptransport "assent/internal/transport/http"
)

// main wires the protocol services to their configured backing stores and
// runs the HTTP server. Business logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	m := metrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	stores, cleanup, err := buildStores(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer cleanup()

	auditor, err := buildAuditor(ctx, cfg, log)
	if err != nil {
		return err
	}
	if kafkaPub, ok := auditor.(*audit.KafkaPublisher); ok {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = kafkaPub.Close(flushCtx)
		}()
	}

	jwtSvc := jwttoken.NewService(cfg.Server.JWTSigningKey, cfg.Server.Issuer)

	// The in-process user store is a development stand-in; hosting
	// applications supply their own profile.Service implementation.
	users := profile.NewInMemory()

	clients := client.NewValidator(stores.clients, client.WithLogger(log))
	scopes := resource.NewValidator(stores.resources)
	consentSvc := consent.NewService(consent.NewInMemory())

	deps := httptransport.Deps{
		Clients:            clients,
		AuthorizeValidator: authorize.NewValidator(clients, scopes, authorize.WithValidatorLogger(log)),
		Interactions:       authorize.NewInteractionGenerator(users, consentSvc, authorize.WithInteractionLogger(log)),
		AuthorizeResponses: authorize.NewResponseGenerator(stores.codes, jwtSvc, users, authorize.WithResponseLogger(log)),
		TokenValidator: token.NewValidator(scopes, stores.codes, stores.refresh, stores.devices, users,
			token.WithValidatorLogger(log),
			token.WithPasswordValidator(users),
			token.WithPollingThrottle(stores.throttle)),
		TokenResponses: token.NewResponseGenerator(jwtSvc, stores.refresh, stores.reference, stores.resources, users,
			token.WithGeneratorLogger(log)),
		DeviceResponses: deviceflow.NewResponseGenerator(stores.devices, scopes, cfg.Server.DeviceVerificationURI,
			deviceflow.WithGeneratorLogger(log)),
		Introspector: introspection.NewGenerator(stores.reference, stores.resources, introspection.WithLogger(log)),
		Revoker:      revocation.NewGenerator(stores.reference, stores.refresh, revocation.WithLogger(log)),
	}
	handler := httptransport.NewHandler(deps,
		httptransport.WithLogger(log),
		httptransport.WithMetrics(m),
		httptransport.WithAuditor(auditor),
		httptransport.WithSubjectResolver(httptransport.NewBearerSubjectResolver(jwtSvc)),
	)

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("assent listening", "addr", cfg.Server.Addr, "issuer", cfg.Server.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if stores.sweepExpired != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := stores.sweepExpired(ctx, time.Now()); err != nil {
						log.Error("expired grant sweep failed", "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// storeSet groups every backing store behind its domain contract.
type storeSet struct {
	clients   client.Store
	resources resource.Store
	codes     grants.AuthorizationCodeStore
	refresh   grants.RefreshTokenStore
	reference grants.ReferenceTokenStore
	devices   grants.DeviceFlowStore
	throttle  token.PollingThrottle
	// sweepExpired removes lapsed grants; nil when the backing store
	// expires entries itself.
	sweepExpired func(ctx context.Context, now time.Time) error
}

// buildStores selects Postgres-backed stores when a DSN is configured and
// Redis-backed volatile stores when a Redis URL is configured, falling back
// to in-memory implementations otherwise.
func buildStores(ctx context.Context, cfg config.Config, redisClient *platformredis.Client) (storeSet, func(), error) {
	stores := storeSet{
		clients:   client.NewInMemory(),
		resources: mustEmptyResources(),
		codes:     authcode.New(),
		refresh:   refreshtoken.New(),
		reference: referencetoken.New(),
		devices:   devicecode.New(),
		throttle:  deviceflow.NewMemoryThrottle(),
	}
	cleanup := func() {}

	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return storeSet{}, nil, fmt.Errorf("postgres pool: %w", err)
		}
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			pool.Close()
			return storeSet{}, nil, fmt.Errorf("postgres open: %w", err)
		}

		grantStore := grantspg.New(pool)
		stores.codes = grantStore
		stores.refresh = grantspg.NewRefreshTokens(grantStore)
		stores.sweepExpired = grantStore.DeleteExpired
		stores.clients = client.NewPostgres(db)
		stores.resources = resource.NewPostgres(db)
		cleanup = func() {
			_ = db.Close()
			pool.Close()
		}
	}

	if redisClient != nil {
		stores.devices = devicecode.NewRedis(redisClient.Client)
		stores.reference = referencetoken.NewRedis(redisClient.Client)
		stores.throttle = deviceflow.NewRedisThrottle(redisClient.Client)
	}

	return stores, cleanup, nil
}

func mustEmptyResources() resource.Store {
	store, err := resource.NewInMemory(nil, nil)
	if err != nil {
		panic(err)
	}
	return store
}

func buildAuditor(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewMemory(), nil
	}
	publisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, audit.WithKafkaLogger(log))
	if err != nil {
		return nil, fmt.Errorf("audit publisher: %w", err)
	}
	return publisher, nil
}
