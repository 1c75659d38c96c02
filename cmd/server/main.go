package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/auth"
	"github.com/openlot/auction-api/internal/bidding"
	"github.com/openlot/auction-api/internal/config"
	"github.com/openlot/auction-api/internal/database"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/payment"
	"github.com/openlot/auction-api/internal/settlement"
	"github.com/openlot/auction-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the auction API server with graceful shutdown
// support. It wires the database, the notification dispatcher, the payment
// gateway, all domain services, and the background settlement processor.
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Notification dispatcher: NATS when configured, log fallback otherwise
	var dispatcher notification.Dispatcher
	if cfg.NATSUrl != "" {
		natsDispatcher, err := notification.NewNATSDispatcher(cfg.NATSUrl)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect notification dispatcher")
		}
		defer natsDispatcher.Close()
		dispatcher = natsDispatcher
	} else {
		dispatcher = notification.NewLogDispatcher()
	}

	gateway := payment.NewSimulatedGateway()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret, db)
	authHandlers := auth.NewGinHandlers(authService)

	auctionService := auction.NewService(db)
	auctionHandlers := auction.NewGinHandlers(auctionService)

	biddingService := bidding.NewService(db, dispatcher, cfg.BidWaitTimeout)
	biddingHandlers := bidding.NewGinHandlers(biddingService)

	settlementService := settlement.NewService(db, gateway, dispatcher)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Create and start settlement processor
	settlementProcessor := settlement.NewProcessor(settlementService, cfg.SettleInterval, cfg.PaymentRecoveryAge)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go settlementProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, auctionHandlers, biddingHandlers, settlementHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and authentication
// - Auction/bid routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	biddingHandlers *bidding.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Auction routes
		auctions := v1.Group("/auctions")
		{
			auctions.GET("", auctionHandlers.ListAuctionsHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.GET("/:auction_id/bids", auctionHandlers.ListBidsHandler())

			protected := auctions.Group("")
			protected.Use(middleware.JWTAuth(jwtSecret))
			{
				protected.POST("", auctionHandlers.CreateAuctionHandler())
				protected.POST("/:auction_id/bids", biddingHandlers.SubmitBidHandler())
			}
		}

		// Seller's own listings, settled included
		sellers := v1.Group("/sellers")
		sellers.Use(middleware.JWTAuth(jwtSecret))
		{
			sellers.GET("/auctions", auctionHandlers.ListSellerAuctionsHandler())
		}

		// Transaction lookup for buyers and sellers
		transactions := v1.Group("/transactions")
		transactions.Use(middleware.JWTAuth(jwtSecret))
		{
			transactions.GET("/:transaction_id", settlementHandlers.GetTransactionHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/settlement/:auction_id", settlementHandlers.SettleAuctionHandler())
			internal.POST("/transactions/:transaction_id/delivery", settlementHandlers.UpdateDeliveryStatusHandler())
		}
	}
}
