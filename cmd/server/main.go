package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/ginuineca/ArtistSync2/internal/chat"
	"github.com/ginuineca/ArtistSync2/internal/config"
	"github.com/ginuineca/ArtistSync2/internal/db"
	appmiddleware "github.com/ginuineca/ArtistSync2/internal/middleware"
	"github.com/ginuineca/ArtistSync2/internal/notification"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DATABASE_DSN is not set")
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		logger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database schema initialized")

	// Redis relays fan-out across processes; without it the hub still works
	// within a single instance.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		logger.Info("connected to redis")
	}

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	userHandler := user.NewHandler(userService)

	presence := chat.NewPresence()
	hub := chat.NewHub(presence, redisClient, logger)

	msgRepo := chat.NewMessageRepo(database.Conn)
	convRepo := chat.NewConversationRepo(database.Conn, msgRepo)

	notifRepo := notification.NewRepository(database.Conn)
	bridge := notification.NewBridge(notifRepo, hub, cfg.Notification.TTL, logger)
	notifHandler := notification.NewHandler(bridge)

	engine := chat.NewEngine(convRepo, msgRepo, hub, bridge, logger)
	chatHandler := chat.NewHandler(engine, hub, userService, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunRelay(ctx)
	go bridge.RunSweeper(ctx, cfg.Notification.SweepInterval)

	authMiddleware := appmiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes.
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Get("/users/search", userHandler.SearchUsers)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", chatHandler.ListConversations)
				r.Post("/", chatHandler.CreateConversation)
				r.Get("/{id}", chatHandler.GetConversation)
				r.Delete("/{id}", chatHandler.DeleteConversation)
				r.Get("/{id}/messages", chatHandler.ListMessages)
				r.Post("/{id}/messages", chatHandler.SendMessage)
				r.Post("/{id}/read-all", chatHandler.MarkAllRead)
				r.Post("/{id}/participants", chatHandler.AddParticipant)
				r.Delete("/{id}/participants/{userID}", chatHandler.RemoveParticipant)
				r.Put("/{id}/participants/{userID}/role", chatHandler.SetParticipantRole)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Put("/{id}", chatHandler.EditMessage)
				r.Delete("/{id}", chatHandler.DeleteMessage)
				r.Post("/{id}/read", chatHandler.MarkMessageRead)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notifHandler.List)
				r.Get("/unread-count", notifHandler.UnreadCount)
				r.Put("/read-all", notifHandler.MarkAllRead)
				r.Put("/{id}/read", notifHandler.MarkRead)
				r.Delete("/{id}", notifHandler.Delete)
			})
		})
	})

	logger.Info("server starting", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
