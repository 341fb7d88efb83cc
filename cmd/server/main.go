package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/collab"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/config"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/httpserver"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/logging"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/notify"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/security"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/store"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/store/postgres"
	redisstore "github.com/MindLyfe/MindLyfe-Platform-sub005/internal/store/redis"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/store/sqlite"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(true)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.IsDevelopment())

	// Storage: postgres when DATABASE_URL is set, embedded sqlite otherwise.
	var (
		db       *sql.DB
		rooms    domain.RoomRepository
		messages domain.MessageRepository
		sessions domain.CallSessionRepository
	)
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open postgres")
		}
		if err := postgres.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		rooms = postgres.NewRoomRepo(db)
		messages = postgres.NewMessageRepo(db)
		sessions = postgres.NewCallSessionRepo(db)
		logger.Info().Msg("using postgres storage")
	} else {
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open sqlite")
		}
		if err := sqlite.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		rooms = sqlite.NewRoomRepo(db)
		messages = sqlite.NewMessageRepo(db)
		sessions = sqlite.NewCallSessionRepo(db)
		logger.Info().Str("path", cfg.SQLitePath).Msg("using sqlite storage")
	}
	defer db.Close()

	// Rate-limit window: redis sliding window when configured, otherwise the
	// messages table itself serves as the window.
	var window domain.WindowStore
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		window, err = redisstore.New(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("using redis rate-limit window")
	} else {
		window = store.NewMessageWindowStore(messages)
	}

	// Collaborator clients.
	relationships := collab.NewRelationshipClient(cfg.RelationshipServiceURL, cfg.CollaboratorTimeout, logger)
	media := collab.NewMediaClient(cfg.MediaRoutingServiceURL, cfg.CollaboratorTimeout, logger)
	directory := collab.NewDirectoryClient(cfg.PrincipalDirectoryURL, cfg.CollaboratorTimeout, logger)
	notifications := collab.NewNotificationClient(cfg.NotificationServiceURL, cfg.CollaboratorTimeout, logger)

	queue := notify.NewQueue(notifications, 256, cfg.CollaboratorTimeout, logger)
	go queue.Start()
	defer queue.Stop()

	tokenSvc := security.NewTokenService(cfg.JWTSecret)
	hub := ws.NewHub()

	gate := service.NewRelationshipGate(rooms, relationships)
	identities := service.NewIdentityResolver(relationships, logger)
	limiter := service.NewRateLimiter(window, cfg.RateLimitWindow, cfg.RateLimitMax)

	roomSvc := service.NewRoomService(rooms, gate, identities, directory, relationships, queue, logger)
	messageSvc := service.NewMessageService(rooms, messages, identities, limiter, hub, cfg.MaxContentRunes, cfg.MessageListLimit, logger)
	callSvc := service.NewCallService(
		sessions, rooms, gate, identities, media, directory, queue, hub,
		cfg.RingWindow, cfg.SessionMaxDuration, cfg.RingSweepInterval,
		logger,
	)
	go callSvc.RunRingWatcher()
	defer callSvc.Stop()

	router := httpserver.NewRouter(cfg, httpserver.Services{
		Rooms:    roomSvc,
		Messages: messageSvc,
		Calls:    callSvc,
	}, tokenSvc, hub)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr()).Msg("starting chat-core server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
}
