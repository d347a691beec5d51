package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devitachiui22/aotravel-sub002/internal/config"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/engine"
	"github.com/devitachiui22/aotravel-sub002/internal/handlers"
	"github.com/devitachiui22/aotravel-sub002/internal/logging"
	"github.com/devitachiui22/aotravel-sub002/internal/middleware"
	"github.com/devitachiui22/aotravel-sub002/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := services.InitRedis(cfg.RedisURL); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	ledgerFeed := services.NewLedgerFeed(cfg.KafkaBrokers, cfg.KafkaLedgerTopic)
	defer ledgerFeed.Close()

	hub := services.NewHub()
	go hub.Run()

	dispatch := engine.NewDispatch(db, hub, logger, cfg)
	negotiation := engine.NewNegotiation(db, hub, logger, cfg)
	settlement := engine.NewSettlement(db, hub, ledgerFeed, logger, cfg)
	ledger := engine.NewLedger(db, ledgerFeed, logger)

	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":           "ok",
			"connectedClients": hub.GetConnectedClients(),
		})
	})

	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db, cfg.JWTSecret))
			auth.POST("/login", handlers.Login(db, cfg.JWTSecret))
		}

		// WebSocket connection
		api.GET("/ws", middleware.AuthMiddleware(cfg.JWTSecret), handlers.WebSocketHandler(hub))

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			driver := protected.Group("/driver")
			{
				driver.POST("/location", handlers.UpdateDriverLocation(db))
				driver.POST("/availability", handlers.UpdateDriverAvailability(db))
				driver.GET("/status", handlers.GetDriverStatus(db))
				driver.POST("/offline", handlers.GoOffline(db))
				driver.POST("/rides/:rideId/accept", handlers.AcceptRide(dispatch))
			}

			rides := protected.Group("/rides")
			{
				rides.POST("/request", handlers.RequestRide(dispatch))
				rides.PATCH("/:rideId/status", handlers.UpdateRideStatus(dispatch))
				rides.POST("/:rideId/complete", handlers.CompleteRide(settlement))
				rides.GET("/active", handlers.GetActiveRides(dispatch))
				rides.GET("/history", handlers.GetRideHistory(dispatch))

				rides.POST("/:rideId/negotiation", handlers.ProposePrice(negotiation))
				rides.POST("/:rideId/negotiation/respond", handlers.RespondToProposal(negotiation))
				rides.GET("/:rideId/negotiation", handlers.GetNegotiationHistory(negotiation))
			}

			wallet := protected.Group("/wallet")
			{
				wallet.GET("", handlers.GetWallet(ledger))
				wallet.GET("/entries", handlers.GetWalletEntries(ledger))
				wallet.POST("/adjust", middleware.AdminOnly(), handlers.AdjustBalance(ledger))
				wallet.GET("/reconcile/:userId", middleware.AdminOnly(), handlers.ReconcileAccount(ledger))
			}
		}
	}

	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
