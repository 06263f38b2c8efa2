package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/chogm/discordlite/internal/application/config"
	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/application/metric"
	"github.com/chogm/discordlite/internal/infra/adapters/postgres"
	"github.com/chogm/discordlite/internal/infra/adapters/postgres/repository"
	"github.com/chogm/discordlite/internal/infra/ports/http/handlers"
	"github.com/chogm/discordlite/internal/infra/ports/http/server"
	"github.com/chogm/discordlite/internal/push"
	"github.com/chogm/discordlite/internal/realtime"
	"github.com/chogm/discordlite/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := slog.LevelInfo

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepo(dbConn)
	channelRepo := repository.NewChannelRepo(dbConn)
	messageRepo := repository.NewMessageRepo(dbConn)
	deviceRepo := repository.NewDeviceRepo(dbConn)

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo)
	channelUsecase := usecase.NewChannelUsecase(channelRepo, messageRepo)

	chatHub := realtime.NewChatHub()
	signalHub := realtime.NewSignalHub()

	pushService := push.NewService(cfg.Push.WebhookURL, deviceRepo)

	authHandler := handlers.NewAuthHandler(userUsecase)
	channelHandler := handlers.NewChannelHandler(channelUsecase)
	deviceHandler := handlers.NewDeviceHandler(deviceRepo)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, chatHub, signalHub, channelUsecase, userUsecase, pushService)

	echoSrv := server.New(cfg, authHandler, channelHandler, deviceHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
