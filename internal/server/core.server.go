package server

import (
	"context"
	"log"
	"net/http"

	"collab-realtime/internal/config"
	hrest "collab-realtime/internal/handler/http"
	wshandler "collab-realtime/internal/handler/ws"
	"collab-realtime/internal/hub"
	"collab-realtime/internal/repository"
	"collab-realtime/internal/router"
	"collab-realtime/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func NewServer(cfg config.AppConfig) *http.Server {
	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// --- Init repos ---
	repo := repository.NewRepository(dbpool)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- Realtime hub ---
	h := hub.New(rdb, cfg.PresenceSyncInterval, cfg.HeartbeatInterval)
	go h.Run(context.Background())
	wsHandler := wshandler.NewWSHandler(h)

	// --- Usecases ---
	notifUC := usecase.NewNotificationUsecase(repo, h)
	presenceUC := usecase.NewPresenceUsecase(repo, h)

	// --- Handlers ---
	notifHandler := hrest.NewNotificationHandler(notifUC)
	presenceHandler := hrest.NewPresenceHandler(presenceUC)

	// --- HTTP routes ---
	r := chi.NewRouter()
	router.SetupRoutes(r, notifHandler, presenceHandler, wsHandler)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
}
