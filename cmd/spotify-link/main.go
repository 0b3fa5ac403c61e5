package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/adapter/spotify"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/config"
	httptransport "github.com/PlasmaGamerz/Lyro-Spotify/internal/http"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/http/handler"
	apimiddleware "github.com/PlasmaGamerz/Lyro-Spotify/internal/middleware"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/repository"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/server"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/service/link"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/service/refresher"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/statetoken"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newClock,
			newCredentialRepository,
			newSpotifyClient,
			newExchanger,
			newProfileFetcher,
			newStateManager,
			newRefresher,
			newLinkService,
			newRateLimiter,
			handler.NewLinkHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, startRefresher, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func newCredentialRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.CredentialRepository, error) {
	if cfg.DatabaseURL == "" {
		// Dev convenience: without a database the credentials live in memory
		// and are lost on restart.
		logger.Warn("DATABASE_URL not set, storing credentials in memory only")
		return repository.NewMemoryCredentialRepo(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repository.NewPostgresCredentialRepo(pool), nil
}

func newSpotifyClient(cfg config.Config) *spotify.Client {
	return spotify.NewClient(cfg, nil)
}

func newExchanger(client *spotify.Client) spotify.Exchanger {
	return client
}

func newProfileFetcher(client *spotify.Client) spotify.ProfileFetcher {
	return client
}

func newStateManager(cfg config.Config, node *snowflake.Node, clock clockwork.Clock) (*statetoken.Manager, error) {
	return statetoken.NewManager([]byte(cfg.StateSecret), cfg.StateTTL, node, clock)
}

func newRefresher(repo repository.CredentialRepository, exchanger spotify.Exchanger, clock clockwork.Clock, cfg config.Config, logger *zap.Logger) *refresher.Refresher {
	return refresher.New(repo, exchanger, clock, cfg.SweepInterval, cfg.SkewWindow, logger)
}

func newLinkService(
	repo repository.CredentialRepository,
	exchanger spotify.Exchanger,
	profiles spotify.ProfileFetcher,
	states *statetoken.Manager,
	refr *refresher.Refresher,
	clock clockwork.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *link.Service {
	return link.NewService(repo, exchanger, profiles, states, refr, clock, cfg, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	return repository.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger)
}

func startRefresher(lc fx.Lifecycle, refr *refresher.Refresher) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				refr.Run(runCtx)
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
