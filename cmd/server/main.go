// Server runs the linking store: HTTP control plane, gRPC health, chat bot, sweeper and flusher.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"linkgate/internal/audit"
	auditrepo "linkgate/internal/audit/repository"
	"linkgate/internal/chatbot"
	"linkgate/internal/config"
	"linkgate/internal/db"
	"linkgate/internal/db/migrate"
	"linkgate/internal/discord"
	"linkgate/internal/gate"
	"linkgate/internal/health"
	"linkgate/internal/linking/code"
	"linkgate/internal/linking/handler"
	"linkgate/internal/linking/pending"
	"linkgate/internal/linking/repository"
	"linkgate/internal/linking/service"
	"linkgate/internal/linking/store"
	"linkgate/internal/linking/sweeper"
	"linkgate/internal/logging"
	"linkgate/internal/server"
	"linkgate/internal/telegram"
	"linkgate/internal/telemetry"
	otelsetup "linkgate/internal/telemetry/otel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "linkgate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.OTelServiceName,
		Version: cfg.Version,
	})

	generated, err := cfg.EnsureAPIKey()
	if err != nil {
		return fmt.Errorf("api key: %w", err)
	}
	if generated {
		log.Warn().Str("api_key", cfg.APIKey).Msg("API_KEY not set, generated a key for this run; set API_KEY to keep it")
	} else if cfg.APIKeyIsWeak() {
		log.Warn().Int("min_length", config.MinAPIKeyLength).Msg("API_KEY is shorter than recommended")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Env,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	sqlDB, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	var (
		repo   repository.Repository
		pinger repository.Pinger
		audits auditrepo.Repository
	)
	if cfg.LinkStoreDriver == config.DriverPostgres {
		pg := repository.NewPostgresRepository(sqlDB, log)
		repo, pinger = pg, pg
	} else {
		repo = repository.NewFileRepository(cfg.LinksFile, log)
	}
	if sqlDB != nil {
		audits = auditrepo.NewPostgresRepository(sqlDB)
	}

	gen, err := code.NewGenerator(cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("code generator: %w", err)
	}
	links := store.New()
	codes := pending.New(gen, pending.Config{
		TTL:         cfg.CodeTTLDuration(),
		MaxPending:  cfg.CodeMaxPending,
		MaxAttempts: cfg.CodeMaxAttempts,
	})
	flusher := service.NewFlusher(repo, links, log)
	events := otelsetup.NewEventEmitter(providers.LoggerProvider)
	metrics, err := telemetry.NewLinkMetrics(providers.MeterProvider, links.Len)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	svc := service.NewLinkingService(service.Deps{
		Links:     links,
		Codes:     codes,
		Validator: gen,
		Flusher:   flusher,
		Audit:     audit.NewLogger(audits, events, nil, log),
		Metrics:   metrics,
		Log:       log,
	})
	svc.Restore(ctx, repo)
	flusher.Start()

	sweep := sweeper.New(svc, cfg.SweepIntervalDuration(), log)
	if err := sweep.Start(); err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}

	g := gate.New(svc, gate.Config{
		CheckOnJoin: cfg.CheckOnJoin,
		KickMessage: cfg.KickMessage,
		BotUsername: cfg.TelegramBotUsername,
	}, log)

	errCh := make(chan error, 2)

	linkHandler := handler.NewLinkHandler(svc, g, pinger, handler.Info{
		Name:         cfg.OTelServiceName,
		Version:      cfg.Version,
		RateRequests: cfg.RateLimitRequests,
		RateWindow:   cfg.RateLimitWindowDuration(),
	}, log)
	if audits != nil {
		linkHandler.WithAudit(audits)
	}
	app := server.NewHTTP(server.HTTPOptions{
		Version:           cfg.Version,
		APIKey:            cfg.APIKey,
		BodyLimit:         cfg.HTTPBodyLimit,
		RateRequests:      cfg.RateLimitRequests,
		RateWindow:        cfg.RateLimitWindowDuration(),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, linkHandler, log)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	healthSrv := health.NewServer(pinger)
	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = server.NewGRPCServer(cfg.APIKey, server.Deps{Health: healthSrv, Events: events}, log)
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	healthSrv.SetServing(true)

	bots, err := startBots(ctx, cfg, svc, log)
	if err != nil {
		log.Error().Err(err).Msg("chat bot disabled")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()
	healthSrv.SetServing(false)
	shutdown(shutdownCtx, app, grpcSrv, bots, sweep, flusher, log)

	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	if cfg.DBAutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info().Msg("database migrations applied")
	}
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return sqlDB, nil
}

// runningBots holds whichever chat transport was started.
type runningBots struct {
	discord *discord.Bot
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func startBots(ctx context.Context, cfg *config.Config, svc *service.LinkingService, log zerolog.Logger) (*runningBots, error) {
	b := &runningBots{}
	switch {
	case cfg.TelegramEnabled():
		responder := chatbot.NewResponder(svc, chatbot.Options{
			Prefix:           "/",
			Source:           audit.SourceTelegram,
			ReplyToPlainText: true,
		}, log)
		poll := cfg.TelegramPollTimeoutDuration()
		bot := telegram.NewBot(telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIURL, poll), responder, poll, log)
		botCtx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := bot.Run(botCtx); err != nil {
				log.Error().Err(err).Msg("telegram bot stopped")
			}
		}()
	case cfg.DiscordEnabled():
		responder := chatbot.NewResponder(svc, chatbot.Options{
			Prefix: discord.Prefix,
			Source: audit.SourceDiscord,
		}, log)
		bot, err := discord.NewBot(cfg.DiscordBotToken, responder, log)
		if err != nil {
			return b, fmt.Errorf("discord: %w", err)
		}
		if err := bot.Start(); err != nil {
			return b, fmt.Errorf("discord: %w", err)
		}
		b.discord = bot
	default:
		log.Info().Str("platform", cfg.ChatPlatform).Msg("no chat bot configured")
	}
	return b, nil
}

func (b *runningBots) stop() {
	if b == nil {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.discord.Stop()
}

// shutdown stops transports first, then the sweeper, then performs the final save.
func shutdown(ctx context.Context, app *fiber.App, grpcSrv *grpc.Server, bots *runningBots,
	sweep *sweeper.Sweeper, flusher *service.Flusher, log zerolog.Logger) {
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
	}
	bots.stop()
	if err := sweep.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("sweeper stop")
	}
	if err := flusher.Close(ctx); err != nil {
		log.Error().Err(err).Msg("final save failed")
	} else {
		log.Info().Int64("saves", flusher.Saves()).Msg("links saved")
	}
}
