package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"player-economy/config"
	"player-economy/economy"
	"player-economy/handlers"
	"player-economy/notify"
	"player-economy/services"
	"player-economy/store"
	"player-economy/utils"
	"player-economy/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// backend is everything the service needs from the storage layer.
type backend interface {
	store.PlayerStore
	store.LevelStore
	store.RedemptionStore
}

func openBackend(cfg config.Config) backend {
	if cfg.StoreDriver == "memory" {
		log.Println("⚠️  STORE_DRIVER=memory: player state is lost on restart")
		return store.NewMemoryStore()
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	gs := store.NewGormStore(db)
	if err := gs.AutoMigrate(); err != nil {
		log.Fatal("failed to migrate database:", err)
	}
	return gs
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openBackend(cfg)
	hub := notify.NewHub(notify.DefaultBuffer)
	players := store.NewNotifying(db, hub)
	engine := economy.NewEngine(players, cfg.Economy, economy.RealClock{})

	var fetchLevels services.ObjectFetcher
	if cfg.LevelsObjectKey != "" {
		if err := utils.InitR2(); err != nil {
			log.Printf("⚠️  R2 unavailable, level pack import disabled: %v", err)
		} else {
			fetchLevels = utils.FetchObjectFromR2
		}
	}
	catalog := services.NewLevelCatalog(db, fetchLevels, cfg.LevelsObjectKey)

	scheduler, err := services.NewScheduler(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if err := scheduler.Add(services.Job{
		Name:     "level-catalog-refresh",
		Interval: cfg.LevelRefreshInterval,
		Run:      catalog.Sync,
	}); err != nil {
		log.Fatal(err)
	}
	if cfg.RedemptionFeedURL != "" {
		client := workers.NewRedemptionFeedClient(cfg.RedemptionFeedURL, cfg.ServiceToken, utils.HTTPClient)
		redemptions := workers.NewRedemptionSyncWorker(client, db, players, engine)
		if err := scheduler.Add(services.Job{
			Name:     "redemption-sync",
			Interval: cfg.RedemptionPollInterval,
			Run:      redemptions.Poll,
		}); err != nil {
			log.Fatal(err)
		}
	} else {
		log.Println("⚠️  REDEMPTION_FEED_URL not set, redemption sync disabled")
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	})

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	handlers.SetupEconomyRoutes(app, &handlers.EconomyHandler{
		Engine:       engine,
		Levels:       catalog,
		Subscriber:   players,
		ServiceToken: cfg.ServiceToken,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Store driver: %s, consistency: %s", cfg.StoreDriver, cfg.Economy.Consistency)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped.")
}
