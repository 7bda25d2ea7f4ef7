package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"friend-chat/internal/chat"
	"friend-chat/internal/config"
	"friend-chat/internal/db"
	myMiddleware "friend-chat/internal/middleware"
	"friend-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("❌ Config error", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	// 2. Connect to Database (platform layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Error("❌ Failed to connect to DB", "err", err)
		os.Exit(1)
	}
	log.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Error("❌ Migration failed", "err", err)
		os.Exit(1)
	}
	log.Info("✅ Database schema initialized")

	// 3. Broadcast broker: Redis when configured, in-process otherwise
	var broker chat.Broker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Error("❌ Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		log.Info("✅ Connected to Redis")
		broker = chat.NewRedisBroker(redisClient, log)
	} else {
		log.Info("REDIS_ADDR not set, broadcasting in-process only")
		broker = chat.NewLoopbackBroker()
	}

	// 4. User feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Chat feature
	store := chat.NewPostgresStore(database.Conn, cfg.ReplayLimit)
	presence := chat.NewPresenceTracker()
	hub := chat.NewHub(broker, store, presence, log)
	go hub.Run(context.Background())

	recovery := chat.NewRecoveryService(store, log)
	chatHandler := chat.NewHandler(hub, recovery, store, presence, userService, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Get("/api/presence", chatHandler.GetPresence)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/addable", userHandler.AddableUsers)
		r.Get("/api/friends", userHandler.ListFriends)
		r.Post("/api/friends/{username}", userHandler.AddFriend)
		r.Delete("/api/friends/{username}", userHandler.RemoveFriend)
	})

	log.Info("🚀 Server starting", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
