package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AnshRaj112/campus-chat-backend/internal/config"
	"github.com/AnshRaj112/campus-chat-backend/internal/database"
	"github.com/AnshRaj112/campus-chat-backend/internal/handlers"
	"github.com/AnshRaj112/campus-chat-backend/internal/kafka"
	"github.com/AnshRaj112/campus-chat-backend/internal/logger"
	"github.com/AnshRaj112/campus-chat-backend/internal/media"
	"github.com/AnshRaj112/campus-chat-backend/internal/middleware"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/internal/repository"
	"github.com/AnshRaj112/campus-chat-backend/internal/repository/memory"
	"github.com/AnshRaj112/campus-chat-backend/internal/routes"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
)

// backend bundles the stores and collaborators selected by STORE_BACKEND.
type backend struct {
	conversations services.ConversationStore
	messages      services.MessageStore
	notifications services.NotificationStore
	enrollments   services.EnrollmentProvider
	directory     services.Directory
	sessions      middleware.SessionValidator
	broadcaster   realtime.Broadcaster
	closers       []func() error
}

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	logr, err := logger.New(!cfg.IsProduction())
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(cfg.SessionQueueLength, logr.Named("hub"))

	var be *backend
	switch cfg.StoreBackend {
	case "memory":
		be = memoryBackend(cfg, hub, logr)
	default:
		be, err = persistentBackend(ctx, cfg, hub, logr)
		if err != nil {
			logr.Fatalw("failed to initialize storage", "error", err)
		}
	}
	defer func() {
		for i := len(be.closers) - 1; i >= 0; i-- {
			if err := be.closers[i](); err != nil {
				logr.Warnw("shutdown step failed", "error", err)
			}
		}
	}()

	uploader := newUploader(ctx, cfg, logr)

	var sink services.NotificationSink
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		be.closers = append(be.closers, producer.Close)
		sink = producer
		logr.Infow("forwarding notifications to Kafka", "topic", producer.Topic(), "brokers", cfg.KafkaBrokers)
	}

	notifier := services.NewNotificationDispatcher(be.notifications, be.broadcaster, sink, logr.Named("notifications"))
	conversations := services.NewConversationService(services.ConversationDeps{
		Conversations: be.conversations,
		Messages:      be.messages,
		Enrollments:   be.enrollments,
		Events:        be.broadcaster,
		Notifier:      notifier,
		Log:           logr.Named("conversations"),
	})
	messages := services.NewMessageService(services.MessageDeps{
		Conversations: be.conversations,
		Messages:      be.messages,
		Directory:     be.directory,
		Uploader:      uploader,
		Events:        be.broadcaster,
		Notifier:      notifier,
		MediaFolder:   cfg.MediaFolder,
		UploadTimeout: cfg.UploadTimeout,
		Log:           logr.Named("messages"),
	})

	h := handlers.New(handlers.Options{
		Conversations:  conversations,
		Messages:       messages,
		Notifications:  notifier,
		Broadcaster:    be.broadcaster,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            logr.Named("http"),
	})

	sendLimiter := middleware.NewSendLimiter(cfg.SendRatePerMinute)
	defer sendLimiter.Close()

	mws := []func(http.Handler) http.Handler{chimw.RequestID, chimw.Recoverer}
	if cfg.IsProduction() {
		mws = append(mws, middleware.ProductionSecurity(cfg.AllowedHost)...)
		logr.Infow("production security enabled", "host_check", cfg.AllowedHost != "")
	}

	r := chi.NewRouter()
	routes.SetupRoutes(r, routes.Deps{
		Handler:        h,
		Sessions:       be.sessions,
		SendLimiter:    sendLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Middlewares:    mws,
		SessionCount:   hub.SessionCount,
		Log:            logr.Named("auth"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Infow("campus chat backend running", "port", cfg.Port, "store", cfg.StoreBackend, "broadcast", cfg.BroadcastMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatalw("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warnw("graceful shutdown failed", "error", err)
	}
	// Pending notifications still need the stores and the producer.
	notifier.Wait()
}

func persistentBackend(ctx context.Context, cfg *config.Config, hub *realtime.Hub, logr *zap.SugaredLogger) (*backend, error) {
	be := &backend{}

	if err := database.ConnectPostgres(cfg.PostgresURI, logr); err != nil {
		return nil, err
	}
	be.closers = append(be.closers, database.DisconnectPostgres)

	if err := database.ConnectRedis(cfg.RedisURI, logr); err != nil {
		return nil, err
	}
	be.closers = append(be.closers, database.DisconnectRedis)

	if err := database.Connect(cfg.MongoURI, logr); err != nil {
		return nil, err
	}
	be.closers = append(be.closers, database.Disconnect)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.EnsureIndexes(indexCtx, database.DB); err != nil {
		// The unique pair index is what keeps individual conversations unique.
		return nil, err
	}
	logr.Infow("MongoDB indexes ensured")

	be.conversations = repository.NewConversationStore(database.DB)
	be.messages = repository.NewMessageStore(database.DB)
	be.enrollments = repository.NewEnrollmentProvider(database.DB)
	be.directory = services.NewCachedDirectory(repository.NewUserDirectory(database.DB), database.RedisClient,
		services.DefaultProfileTTL, logr.Named("directory"))
	be.notifications = repository.NewNotificationStore(database.PostgresDB)
	be.sessions = services.NewSessionStore(database.RedisClient)

	if cfg.BroadcastMode == "local" {
		be.broadcaster = realtime.NewLocalBroadcaster(hub)
	} else {
		rb := realtime.NewRedisBroadcaster(database.RedisClient, hub, logr.Named("broadcast"))
		rb.Start(ctx)
		be.broadcaster = rb
	}
	// Closed before the Redis client it depends on.
	be.closers = append(be.closers, be.broadcaster.Close)
	return be, nil
}

func memoryBackend(cfg *config.Config, hub *realtime.Hub, logr *zap.SugaredLogger) *backend {
	logr.Warnw("using in-memory storage; data is lost on restart")

	sessions := memory.NewSessions()
	for token, raw := range cfg.DevSessions {
		id, err := identity.Normalize(raw)
		if err != nil {
			logr.Warnw("skipping dev session with invalid identity", "token", token)
			continue
		}
		sessions.Put(token, id)
	}

	return &backend{
		conversations: memory.NewConversationStore(),
		messages:      memory.NewMessageStore(),
		notifications: memory.NewNotificationStore(),
		enrollments:   memory.NewEnrollments(),
		directory:     memory.NewDirectory(),
		sessions:      sessions,
		broadcaster:   realtime.NewLocalBroadcaster(hub),
	}
}

func newUploader(ctx context.Context, cfg *config.Config, logr *zap.SugaredLogger) services.Uploader {
	switch cfg.MediaBackend {
	case "cloudinary":
		if cfg.CloudinaryName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			logr.Warnw("Cloudinary credentials not found; attachments will be rejected")
			return nil
		}
		svc, err := media.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logr.Warnw("failed to initialize Cloudinary; attachments will be rejected", "error", err)
			return nil
		}
		logr.Infow("Cloudinary uploader initialized")
		return svc
	case "s3":
		store, err := media.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3PublicRead)
		if err != nil {
			logr.Warnw("failed to initialize S3; attachments will be rejected", "error", err)
			return nil
		}
		logr.Infow("S3 uploader initialized", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
		return store
	}
	logr.Warnw("no media backend configured; attachments will be rejected", "backend", cfg.MediaBackend)
	return nil
}
