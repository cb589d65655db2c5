package main

import (
	"context"
	"liveclass/internal/cache"
	"liveclass/internal/config"
	"liveclass/internal/repository"
	"liveclass/internal/service"
	"liveclass/internal/transport/rest"
	"liveclass/internal/transport/ws"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// @title Live Session API
// @version 1.0
// @description Live learning session admission and lifecycle service
// @host localhost:8080
// @BasePath /v1
func main() {
	_ = godotenv.Load()

	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDatabase)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("Failed to create indexes:", err)
	}

	// Redis connection
	redisAddr := strings.TrimPrefix(cfg.RedisAddr, "redis://")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories and code index
	sessionRepo := repository.NewSessionRepo(db)
	participantRepo := repository.NewParticipantRepo(db)
	codeIndex := cache.NewCodeIndex(rdb)

	// Initialize services
	authSvc := service.NewAuthService()
	lifecycleSvc := service.NewLifecycleService(sessionRepo, participantRepo, codeIndex)
	admissionSvc := service.NewAdmissionService(sessionRepo, participantRepo)
	querySvc := service.NewQueryService(sessionRepo, codeIndex)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	lifecycleSvc.SetBroadcaster(wsHub)
	admissionSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:      authSvc,
		LifecycleService: lifecycleSvc,
		AdmissionService: admissionSvc,
		QueryService:     querySvc,
		WSHub:            wsHub,
	}

	router := rest.NewRouter(container)

	// Stale session sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := lifecycleSvc.ExpireStale(sweepCtx, cfg.SessionMaxAge); err != nil {
					log.Printf("Stale sweep failed: %v", err)
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST  /v1/sessions")
		log.Println("  GET   /v1/sessions")
		log.Println("  GET   /v1/sessions/mine")
		log.Println("  GET   /v1/sessions/code/{code}")
		log.Println("  POST  /v1/sessions/{id}/join")
		log.Println("  POST  /v1/sessions/{id}/start")
		log.Println("  POST  /v1/sessions/{id}/end")
		log.Println("  POST  /v1/sessions/{id}/leave")
		log.Println("  WS    /v1/ws/sessions/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
