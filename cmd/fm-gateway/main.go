package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/fresh-motors/gateway/internal/api"
	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/config"
	"github.com/fresh-motors/gateway/internal/freshmotors"
	"github.com/fresh-motors/gateway/internal/publisher"
	"github.com/fresh-motors/gateway/internal/rate"
	"github.com/fresh-motors/gateway/internal/store"
	"github.com/fresh-motors/gateway/internal/telemetry"
	"github.com/fresh-motors/gateway/pkg/logger"
	"github.com/fresh-motors/gateway/pkg/model"
	pkgsecrets "github.com/fresh-motors/gateway/pkg/secrets"
	"github.com/fresh-motors/gateway/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [fm-gateway]...")

	// --- Resolve backend service credentials ---
	sdkCfg := freshmotors.ClientConfig{BaseURL: cfg.BackendBaseURL}
	if cfg.ServiceSecret != "" {
		provider, err := pkgsecrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		secret, err := provider.GetSecret(ctx, cfg.ServiceSecret)
		if err != nil {
			logg.Fatalw("failed to resolve service secret", "error", err)
		}
		sdkCfg.ServiceKey = secret["service_key"]
		if base := secret["base_url"]; base != "" {
			sdkCfg.BaseURL = base
		}
		logg.Infow("service credentials resolved",
			"service_key", utils.MaskToken(sdkCfg.ServiceKey))
	}

	// --- Session mirror (Redis) ---
	sessions, err := store.New(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.SessionTTL, logger.L())
	if err != nil {
		logg.Fatalw("failed to init session store", "error", err)
	}
	defer sessions.Close() //nolint:errcheck

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	pub, err := publisher.New(nc, cfg.EventSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Telemetry sink (optional) ---
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		logg.Info("connecting to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logg.Fatalw("failed to init postgres pool", "error", err)
		}
		defer pgPool.Close()
	}
	beacons := telemetry.NewBeaconWriter(pgPool, logger.L(), cfg.ServiceName)

	// --- Auth: refresher, session manager, transport ---
	refresher := auth.NewHTTPRefresher(logger.L(), sdkCfg.BaseURL, cfg.RefreshTimeout)

	hooks := func(sessionID string) auth.Hooks {
		return auth.Hooks{
			OnRefreshed: func(t auth.Tokens, rotated bool) {
				_ = pub.PublishTokenRefreshed(context.Background(), model.TokenRefreshedEvent{
					SessionID:    sessionID,
					Rotated:      rotated,
					AccessExpiry: t.AccessExpiry(),
					Timestamp:    time.Now().UTC(),
				})
			},
			OnSessionExpired: func(reason error) {
				_ = pub.PublishSessionExpired(context.Background(), model.SessionExpiredEvent{
					SessionID: sessionID,
					Reason:    reason.Error(),
					Timestamp: time.Now().UTC(),
				})
			},
		}
	}

	authMgr := auth.NewManager(logger.L(), sessions.ForSession, refresher, cfg.RefreshTimeout, hooks)
	go authMgr.StartSweeper(ctx, 10*time.Minute, time.Hour)

	// --- Backend SDK over the authenticated transport ---
	transport := auth.NewTransport(logger.L(), nil, nil)
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})
	sdk := freshmotors.NewClient(logger.L(), rateMgr, httpClient, sdkCfg)

	// --- HTTP surface ---
	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})
	h := api.NewHandler(logger.L(), sdk, beacons, time.Minute)
	go h.StartSettingsCleaner(cfg.CleanupFreq, ctx.Done())
	api.RegisterRoutes(app, logger.L(), nc, sessions, authMgr, h, cfg)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("server stopped", "error", err)
		}
	}()
	logg.Infow("gateway listening", "port", cfg.Port, "backend", sdkCfg.BaseURL)

	<-ctx.Done()
	logg.Info("shutting down...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logg.Warnw("shutdown incomplete", "error", err)
	}
}
