// Package main runs the Felicity HTTP API with the chat websocket relay and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Pmjarvis/felicity-ems/config"
	"github.com/Pmjarvis/felicity-ems/internal/admin"
	"github.com/Pmjarvis/felicity-ems/internal/auth"
	"github.com/Pmjarvis/felicity-ems/internal/clubs"
	"github.com/Pmjarvis/felicity-ems/internal/events"
	"github.com/Pmjarvis/felicity-ems/internal/messages"
	"github.com/Pmjarvis/felicity-ems/internal/middleware"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/realtime"
	"github.com/Pmjarvis/felicity-ems/internal/registrations"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
	"github.com/Pmjarvis/felicity-ems/internal/store/postgres"
	"github.com/Pmjarvis/felicity-ems/internal/teams"
	"github.com/Pmjarvis/felicity-ems/internal/tickets"
	"github.com/Pmjarvis/felicity-ems/internal/worker"
	"github.com/Pmjarvis/felicity-ems/pkg/database"
	"github.com/Pmjarvis/felicity-ems/pkg/queue"
	"github.com/Pmjarvis/felicity-ems/pkg/redis"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
	"github.com/Pmjarvis/felicity-ems/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Server)
	defer logger.Sync()

	if !cfg.Server.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	st, closeStore := openStore(ctx, cfg.Database, logger)
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Notifications: in-process delivery, the Redis queue for cmd/worker, or log only.
	processor := worker.NewNotificationProcessor(nil, newDeliverer(cfg.Email, logger), st.NotificationLogs, logger)
	var sender notify.Sender
	switch {
	case cfg.Notifications.InProcess:
		sender = processor
	case rdb != nil:
		sender = notify.NewQueueSender(queue.NewQueue(rdb.Client, logger))
	case cfg.Email.SMTPHost != "":
		sender = processor
	default:
		sender = notify.NewLogSender(logger)
	}
	dispatcher := notify.NewDispatcher(sender, cfg.Notifications.Timeout, logger)

	// Uploads: banners and payment proofs. Typed nils must not reach the interfaces.
	var (
		banners events.BannerStore
		proofs  registrations.ProofStore
	)
	presignExpire := time.Duration(cfg.AWS.PresignExpireMinutes) * time.Minute
	if cfg.AWS.UploadsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			UploadsBucket:        cfg.AWS.UploadsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			banners, proofs = s3Client, s3Client
			presignExpire = s3Client.PresignExpire()
		}
	}

	// Chat rooms fan out through Redis when several API instances run.
	var hub *realtime.Hub
	if rdb != nil {
		ps := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, ps, ps)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	authSvc := auth.NewService(st.Users, jwtService, logger)
	eventSvc := events.NewService(st, dispatcher, logger)
	registrationSvc := registrations.NewService(st, proofs, dispatcher, cfg.Tickets.Prefix, logger)
	teamSvc := teams.NewService(st, dispatcher, cfg.Tickets.Prefix, logger)
	ticketSvc := tickets.NewService(st, logger)
	messageSvc := messages.NewService(st, hub, logger)
	clubSvc := clubs.NewService(st, logger)
	adminSvc := admin.NewService(st, dispatcher, logger)

	if cfg.Admin.Email != "" {
		if err := adminSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
	}

	authHandler := auth.NewHandler(authSvc, logger)
	eventHandler := events.NewHandler(eventSvc, banners, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, presignExpire, logger)
	teamHandler := teams.NewHandler(teamSvc, logger)
	ticketHandler := tickets.NewHandler(ticketSvc, logger)
	messageHandler := messages.NewHandler(messageSvc, logger)
	clubHandler := clubs.NewHandler(clubSvc, logger)
	adminHandler := admin.NewHandler(adminSvc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, messageSvc, jwtService.ValidateActor, logger))

	participant := middleware.RequireRole(models.RoleParticipant)
	organizer := middleware.RequireRole(models.RoleOrganizer)
	manager := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	api := router.Group("/api")

	// Public, personalised when a token is present
	browse := api.Group("")
	browse.Use(middleware.OptionalJWT(jwtService))
	{
		browse.POST("/auth/register", authHandler.Register)
		browse.POST("/auth/login", authHandler.Login)

		browse.GET("/events", eventHandler.List)
		browse.GET("/events/:id", eventHandler.Get)
		browse.GET("/clubs", clubHandler.List)
		browse.GET("/clubs/:id", clubHandler.Get)
	}

	// Protected API (JWT required, account must still be active)
	p := api.Group("")
	p.Use(middleware.JWT(jwtService), middleware.RequireActive(authSvc))
	{
		p.GET("/auth/me", authHandler.Me)
		p.POST("/auth/change-password", authHandler.ChangePassword)
		p.GET("/profile", clubHandler.GetProfile)
		p.PUT("/profile", clubHandler.UpdateProfile)

		// Events
		p.GET("/events/mine", organizer, eventHandler.ListMine)
		p.POST("/events", organizer, eventHandler.Create)
		p.PUT("/events/:id", manager, eventHandler.Update)
		p.DELETE("/events/:id", manager, eventHandler.Delete)
		p.POST("/events/:id/banner", manager, eventHandler.UploadBanner)
		p.GET("/events/:id/notifications", manager, eventHandler.Notifications)

		// Registrations and payments
		p.POST("/events/:id/register", participant, registrationHandler.Register)
		p.GET("/events/:id/registrations", manager, registrationHandler.ListForEvent)
		p.GET("/events/:id/registrations/export", manager, registrationHandler.Export)
		p.GET("/registrations/mine", participant, registrationHandler.ListMine)
		p.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		p.POST("/registrations/:id/resend-confirmation", registrationHandler.ResendConfirmation)
		p.POST("/registrations/:id/payment-proof/upload-url", participant, registrationHandler.GenerateProofUploadURL)
		p.POST("/registrations/:id/payment-proof", participant, registrationHandler.AttachProof)
		p.GET("/registrations/:id/payment-proof", registrationHandler.GetProofURL)
		p.POST("/registrations/:id/payment/review", manager, registrationHandler.ReviewPayment)

		// Teams
		p.POST("/events/:id/teams", participant, teamHandler.Create)
		p.POST("/teams/join", participant, teamHandler.Join)
		p.GET("/teams/mine", participant, teamHandler.ListMine)
		p.GET("/teams/:id", teamHandler.Get)
		p.POST("/teams/:id/finalize", participant, teamHandler.Finalize)
		p.POST("/teams/:id/invite", participant, teamHandler.Invite)
		p.POST("/teams/:id/leave", participant, teamHandler.Leave)
		p.DELETE("/teams/:id/members/:userId", participant, teamHandler.RemoveMember)
		p.DELETE("/teams/:id", participant, teamHandler.Cancel)

		// Tickets and attendance
		p.GET("/tickets/:ticketId", registrationHandler.GetTicket)
		p.GET("/tickets/:ticketId/qr", ticketHandler.QRCode)
		p.POST("/tickets/validate", manager, ticketHandler.Validate)
		p.GET("/events/:id/attendance", manager, ticketHandler.AttendanceReport)

		// Discussion forum
		p.GET("/events/:id/messages", messageHandler.History)
		p.POST("/events/:id/messages", messageHandler.Send)
		p.DELETE("/messages/:id", messageHandler.Delete)
		p.POST("/messages/:id/pin", manager, messageHandler.TogglePin)

		// Clubs
		p.GET("/clubs/following", participant, clubHandler.Following)
		p.POST("/clubs/:id/follow", participant, clubHandler.Follow)
		p.DELETE("/clubs/:id/follow", participant, clubHandler.Unfollow)

		// Organizer self-service
		p.GET("/organizer/stats", organizer, clubHandler.Stats)
		p.POST("/organizer/password-reset", organizer, adminHandler.RequestReset)
		p.GET("/organizer/password-reset", organizer, adminHandler.MyResets)

		// Admin
		a := p.Group("/admin", adminOnly)
		a.POST("/organizers", adminHandler.CreateOrganizer)
		a.GET("/organizers", adminHandler.ListOrganizers)
		a.POST("/organizers/:id/deactivate", adminHandler.Deactivate)
		a.POST("/organizers/:id/reactivate", adminHandler.Reactivate)
		a.GET("/password-resets", adminHandler.ListResets)
		a.POST("/password-resets/:id/approve", adminHandler.ApproveReset)
		a.POST("/password-resets/:id/reject", adminHandler.RejectReset)
		a.GET("/stats", adminHandler.Stats)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Database.Driver),
			zap.Bool("redis", rdb != nil),
			zap.Bool("uploads", proofs != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	dispatcher.Wait()
	logger.Info("server stopped")
}

// openStore returns the configured store and a function releasing its resources.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, func()) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DSN(), database.PoolOptions{MaxConns: int32(cfg.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	return postgres.New(pool), pool.Close
}

func newDeliverer(cfg config.EmailConfig, logger *zap.Logger) *notify.Deliverer {
	if cfg.SMTPHost == "" {
		logger.Info("SMTP not configured; email notifications will fail and be logged")
	}
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.FromAddress,
		FromName: cfg.FromName,
	})
	return notify.NewDeliverer(mailer, notify.NewDiscord(nil))
}

func newLogger(cfg config.ServerConfig) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
