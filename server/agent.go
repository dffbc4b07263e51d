package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"recorder-agent/config"
	"recorder-agent/constant"
	"recorder-agent/dto"
	controlHandler "recorder-agent/handler"
	"recorder-agent/media"
	"recorder-agent/pkg/rabbitmq"
	"recorder-agent/relay"
	"recorder-agent/repository"
	"recorder-agent/service"
)

// coordinatorAnnouncer bridges session state changes into the relay
// coordinator's mailbox. The standalone agent records from tab 0.
type coordinatorAnnouncer struct {
	coord *relay.Coordinator
}

func (a coordinatorAnnouncer) RecordingStarted(_ context.Context, snapshot dto.RecordingSnapshot, deviceId string) {
	a.coord.RecordingStarted(0, snapshot, deviceId)
}

func (a coordinatorAnnouncer) RecordingState(_ context.Context, snapshot dto.RecordingSnapshot) {
	a.coord.RecordingState(snapshot)
}

func (a coordinatorAnnouncer) RecordingStopped(context.Context) {
	a.coord.RecordingStopped()
}

func RunAgent(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() || cfg.App.Environment == constant.EnvironmentStaging.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := repository.Open(cfg.Store.Path)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open chunk store")
	}
	defer store.Close()

	var jobs service.JobPublisher
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	} else {
		publisher, err := rabbitmq.NewPublisher[dto.ProcessingJobMessage](conn, cfg.Queue, cfg.Queue.ExchangeName)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create job publisher")
		} else {
			jobs = publisher
			defer publisher.Close()
		}
	}

	provider := media.NewSyntheticProvider()

	actions := &controlHandler.ActionRegistry{}
	coordinator := relay.NewCoordinator(actions, &relay.InProcessLauncher{Provider: provider})

	sessionService := service.NewSessionService(store, provider, nil, coordinatorAnnouncer{coord: coordinator}, service.SessionOptions{})
	actions.Session = sessionService
	go coordinator.Run(ctx)
	uploadService := service.NewUploadService(store, service.NewMinioBlobStore(cfg.Storage), service.UploadOptions{
		Bucket:      cfg.MinIOBucket,
		WorkspaceId: cfg.App.WorkspaceId,
	})
	finalizer := service.NewFinalizer(uploadService, sessionService, jobs)

	serviceDeps := controlHandler.ServiceDependencies{
		SessionService: sessionService,
		Finalizer:      finalizer,
		Provider:       provider,
		Coordinator:    coordinator,
		DefaultConfig:  cfg.Recorder.DefaultConfig(),
	}

	// Remote control commands arrive over the broker alongside the local
	// HTTP surface.
	if conn != nil {
		commandConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.Binding{
			Exchange:   cfg.Queue.ExchangeName,
			Queue:      controlHandler.CommandQueue,
			RoutingKey: controlHandler.CommandRoutingKey,
		}, 1, controlHandler.CommandHandler)
		go func() {
			if err := commandConsumer.Consume(ctx, serviceDeps); err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Msg("command consumer error")
			}
		}()
	}

	r := gin.Default()
	addHealth(r)
	controlHandler.Register(r, serviceDeps)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	// Stop any in-flight session so the final chunk is flushed before exit.
	sessionService.Stop(context.WithoutCancel(ctx))

	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
