// @title                       School Records API
// @version                     1.0
// @description                 Identity, access and person records for the school back office.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/waldorf/school-records/internal/api"
	"github.com/waldorf/school-records/internal/api/handler"
	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
	"github.com/waldorf/school-records/internal/core/service"
	"github.com/waldorf/school-records/internal/infrastructure/config"
	"github.com/waldorf/school-records/internal/infrastructure/crypto"
	mongodb "github.com/waldorf/school-records/internal/infrastructure/db/mongo"
	redisdb "github.com/waldorf/school-records/internal/infrastructure/db/redis"
	"github.com/waldorf/school-records/internal/infrastructure/lock"
	"github.com/waldorf/school-records/internal/infrastructure/queue"
	"github.com/waldorf/school-records/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	boot := logger.Init(logger.Options{Level: "info", Service: "school-records"})
	cfg := config.Load(boot)

	// The singleton is already built; rebuild it with the configured level and format.
	logger.Reset()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "school-records",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	credentials := mongodb.NewCredentialRepository(db)
	roles := mongodb.NewRoleRepository(db)
	persons := mongodb.NewPersonRepository(db)
	addresses := mongodb.NewAddressRepository(db)

	if err := mongodb.EnsureIndexes(ctx, credentials, persons, addresses); err != nil {
		return err
	}
	seeded, err := roles.SeedRoles(ctx, domain.DefaultRoleCatalog())
	if err != nil {
		return err
	}
	if seeded > 0 {
		log.Info().Int("roles", seeded).Msg("role catalog seeded")
	}

	// --- Identity & access ---
	graph, err := service.LoadRoleGraph(ctx, roles, service.RoleGraphConfig{
		DefaultRole:        domain.RoleName(cfg.Auth.DefaultRole),
		IncludePermissions: cfg.Auth.IncludePermissions,
	}, logger.Component("roles"))
	if err != nil {
		return err
	}
	tokens, err := service.NewJWTIssuer(cfg.Auth, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL,
		service.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	authService, err := service.NewAuthService(
		credentials,
		crypto.NewBcryptHasher(cfg.Auth.BcryptCost),
		graph,
		tokens,
		redisdb.NewRevocationStore(rdb),
		logger.Component("auth"),
	)
	if err != nil {
		return err
	}

	if cfg.Bootstrap.Enabled() {
		if _, err := service.EnsureAdmin(ctx, authService, ports.ProvisionCredentialInput{
			Username: cfg.Bootstrap.Username,
			Email:    cfg.Bootstrap.Email,
			Password: cfg.Bootstrap.Password,
		}, log); err != nil {
			return err
		}
	}

	// --- Person aggregate ---
	locker := lock.NewLayered(lock.NewKeyed(), redisdb.NewLocker(rdb, cfg.Redis.LockTTL, logger.Component("lock")))
	personService := service.NewPersonService(persons, addresses, persons, locker, logger.Component("persons"))

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Log:     log,
		Auth:    authService,
		Persons: personService,
		Tokens:  tokens,
		Checks: map[string]handler.DependencyCheck{
			"mongodb": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	// --- Background deletion scan ---
	dispatcher := queue.NewDispatcher(cfg.Deletion.Workers, queue.NewLogCandidateHandler(logger.Component("deletion")), log)
	scheduler := queue.NewScheduler(personService, dispatcher, cfg.Deletion.ScanInterval, logger.Component("scheduler"))

	g, gctx := errgroup.WithContext(ctx)

	dispatcher.Start(gctx)
	g.Go(func() error {
		dispatcher.Wait()
		return nil
	})
	g.Go(func() error { return scheduler.Run(gctx) })

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
