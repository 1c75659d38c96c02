package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/auth"
	"github.com/openlot/auction-api/internal/bidding"
	"github.com/openlot/auction-api/internal/database"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/payment"
	"github.com/openlot/auction-api/internal/settlement"
	"github.com/openlot/auction-api/internal/types"
	"github.com/openlot/auction-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	minAuctions   = 5
	maxAuctions   = 25
	numBidders    = 8
	bidsPerBidder = 6
	auctionWindow = 8 * time.Second
	serverAddress = "http://localhost:8080"
	simulationJWT = "auction-secret-key"
)

var itemTitles = []string{
	"Vintage Camera", "Mechanical Keyboard", "Road Bike", "Turntable",
	"Espresso Machine", "Film Projector", "Synthesizer", "Telescope",
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simUser is one registered marketplace participant with an active token
type simUser struct {
	userID string
	token  string
}

// simulationClient handles HTTP communication with the auction API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"register": {name: "Register User"},
			"auth":     {name: "Authentication"},
			"create":   {name: "Create Auction"},
			"bid":      {name: "Submit Bid"},
			"settle":   {name: "Settle Auction"},
			"txn":      {name: "Get Transaction"},
		},
	}
}

// registerUser creates a marketplace user and returns an authenticated simUser
func (sc *simulationClient) registerUser(username string) (*simUser, error) {
	start := time.Now()
	payload := map[string]string{
		"username":  username,
		"email":     fmt.Sprintf("%s@example.com", username),
		"full_name": strings.Title(strings.ReplaceAll(username, "_", " ")),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/register", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	sc.stats["register"].addDuration(time.Since(start))
	if err != nil {
		sc.stats["register"].failures++
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["register"].failures++
		return nil, fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			User      types.User `json:"user"`
			APISecret string     `json:"api_secret"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	token, err := sc.authenticate(result.Data.User.APIKey, result.Data.APISecret)
	if err != nil {
		return nil, err
	}

	return &simUser{
		userID: result.Data.User.UserID,
		token:  token,
	}, nil
}

// authenticate exchanges API credentials for a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		sc.stats["auth"].failures++
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["auth"].failures++
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// createAuction lists a new item and returns its auction ID
func (sc *simulationClient) createAuction(seller *simUser, title string, startingPrice decimal.Decimal, window time.Duration) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	payload := map[string]interface{}{
		"title":            title,
		"description":      fmt.Sprintf("A fine %s in working condition", strings.ToLower(title)),
		"starting_price":   startingPrice,
		"duration_seconds": int64(window.Seconds()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/auctions", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", seller.token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["create"].failures++
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create auction response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["create"].failures++
		return "", fmt.Errorf("create auction failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			AuctionID string `json:"auction_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.AuctionID == "" {
		return "", fmt.Errorf("no auction ID in response: %s", string(respBody))
	}

	return result.Data.AuctionID, nil
}

// submitBid places one bid; rejected is true when the API answered with a
// validator reason rather than an infrastructure error
func (sc *simulationClient) submitBid(bidder *simUser, auctionID string, amount decimal.Decimal) (accepted bool, rejected bool, err error) {
	start := time.Now()
	defer func() {
		sc.stats["bid"].addDuration(time.Since(start))
	}()

	payload := map[string]interface{}{"amount": amount}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, false, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/auctions/%s/bids", sc.baseURL, auctionID),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return false, false, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bidder.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["bid"].failures++
		return false, false, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	log.Debug().Str("response", string(respBody)).Msg("Submit bid response")

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return true, false, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return false, true, nil
	default:
		sc.stats["bid"].failures++
		return false, false, fmt.Errorf("submit bid failed with status %d: %s", resp.StatusCode, string(respBody))
	}
}

// settleAuction triggers settlement through the internal route
func (sc *simulationClient) settleAuction(caller *simUser, auctionID string) (*types.SettlementResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["settle"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/internal/settlement/%s", sc.baseURL, auctionID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", caller.token))

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["settle"].failures++
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Settle auction response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["settle"].failures++
		return nil, fmt.Errorf("settle auction failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                     `json:"success"`
		Data    types.SettlementResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the auction simulation: it starts a local API server, registers
// sellers and bidders, runs concurrent bidding over short auction windows,
// then settles every auction twice in parallel to exercise the
// exactly-once guarantee.
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient()

	// Register sellers and bidders
	var sellers, bidders []*simUser
	for i := 0; i < 3; i++ {
		u, err := simClient.registerUser(fmt.Sprintf("seller_%d", i))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register seller")
		}
		sellers = append(sellers, u)
	}
	for i := 0; i < numBidders; i++ {
		u, err := simClient.registerUser(fmt.Sprintf("bidder_%d", i))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register bidder")
		}
		bidders = append(bidders, u)
	}

	targetAuctions := rand.Intn(maxAuctions-minAuctions) + minAuctions
	log.Info().Int("target_auctions", targetAuctions).Msg("Starting simulation")

	// Create auctions with short windows
	var auctionIDs []string
	for i := 0; i < targetAuctions; i++ {
		seller := sellers[rand.Intn(len(sellers))]
		startingPrice := decimal.NewFromInt(int64(rand.Intn(900) + 100))
		title := itemTitles[rand.Intn(len(itemTitles))]

		auctionID, err := simClient.createAuction(seller, title, startingPrice, auctionWindow)
		if err != nil {
			log.Error().Err(err).Str("title", title).Msg("Failed to create auction")
			continue
		}
		auctionIDs = append(auctionIDs, auctionID)
		log.Info().
			Str("auction_id", auctionID).
			Str("title", title).
			Str("starting_price", startingPrice.String()).
			Msg("Auction created")
	}

	stats := struct {
		TotalAuctions   int
		AcceptedBids    int
		RejectedBids    int
		FailedBids      int
		Sold            int
		Unsold          int
		PaymentsOK      int
		PaymentsFailed  int
		DoubleSettles   int
		StartTime       time.Time
		Outcomes        map[string]int
	}{
		StartTime: time.Now(),
		Outcomes:  make(map[string]int),
	}
	stats.TotalAuctions = len(auctionIDs)

	// Concurrent bidding: every bidder walks the auction list placing
	// escalating bids; lowball amounts exercise the validator rejects
	var wg sync.WaitGroup
	var statsMu sync.Mutex
	for _, bidder := range bidders {
		wg.Add(1)
		go func(b *simUser) {
			defer wg.Done()
			for i := 0; i < bidsPerBidder; i++ {
				auctionID := auctionIDs[rand.Intn(len(auctionIDs))]
				amount := decimal.NewFromInt(int64(rand.Intn(2000) + 50))

				accepted, rejected, err := simClient.submitBid(b, auctionID, amount)
				statsMu.Lock()
				switch {
				case err != nil:
					stats.FailedBids++
				case rejected:
					stats.RejectedBids++
				case accepted:
					stats.AcceptedBids++
				}
				statsMu.Unlock()

				time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
			}
		}(bidder)
	}
	wg.Wait()

	log.Info().
		Int("accepted", stats.AcceptedBids).
		Int("rejected", stats.RejectedBids).
		Int("failed", stats.FailedBids).
		Msg("Bidding phase complete, waiting for auction windows to close")

	time.Sleep(auctionWindow + time.Second)

	// Settle every auction from two goroutines at once; exactly one caller
	// per auction should report a fresh settlement
	for _, auctionID := range auctionIDs {
		results := make(chan *types.SettlementResponse, 2)
		var settleWG sync.WaitGroup
		for i := 0; i < 2; i++ {
			settleWG.Add(1)
			go func() {
				defer settleWG.Done()
				result, err := simClient.settleAuction(sellers[0], auctionID)
				if err != nil {
					log.Error().Err(err).Str("auction_id", auctionID).Msg("Failed to settle auction")
					return
				}
				results <- result
			}()
		}
		settleWG.Wait()
		close(results)

		for result := range results {
			if result.AlreadySettled {
				stats.DoubleSettles++
				continue
			}
			stats.Outcomes[result.Outcome]++
			switch result.Outcome {
			case types.OutcomeSold:
				stats.Sold++
				if result.Transaction != nil {
					if result.Transaction.PaymentStatus == types.PaymentCompleted {
						stats.PaymentsOK++
					} else {
						stats.PaymentsFailed++
					}
				}
			case types.OutcomeUnsold:
				stats.Unsold++
			}

			log.Info().
				Str("auction_id", auctionID).
				Str("outcome", result.Outcome).
				Msg("Auction settled")
		}
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("AUCTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Auction Statistics
------------------
Total Auctions:    %d
Accepted Bids:     %d
Rejected Bids:     %d
Failed Bids:       %d
Sold:              %d
Unsold:            %d
Payments OK:       %d
Payments Failed:   %d
Duplicate Settles: %d
Duration:          %v

Outcome Distribution
--------------------
`, stats.TotalAuctions, stats.AcceptedBids, stats.RejectedBids, stats.FailedBids,
		stats.Sold, stats.Unsold, stats.PaymentsOK, stats.PaymentsFailed,
		stats.DoubleSettles, duration.Round(time.Millisecond))

	maxOutcomeCount := 0
	for _, count := range stats.Outcomes {
		if count > maxOutcomeCount {
			maxOutcomeCount = count
		}
	}
	for outcome, count := range stats.Outcomes {
		barLength := 0
		if maxOutcomeCount > 0 {
			barLength = int(float64(count) / float64(maxOutcomeCount) * 20)
		}
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-8s: %s (%d)\n", outcome, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_auctions", stats.TotalAuctions).
		Int("sold", stats.Sold).
		Int("unsold", stats.Unsold).
		Int("duplicate_settles", stats.DoubleSettles).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the auction API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	dispatcher := notification.NewLogDispatcher()
	gateway := payment.NewSimulatedGateway()

	authService := auth.NewService(simulationJWT, db)
	auctionService := auction.NewService(db)
	biddingService := bidding.NewService(db, dispatcher, 5*time.Second)
	settlementService := settlement.NewService(db, gateway, dispatcher)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	auctionHandlers := auction.NewGinHandlers(auctionService)
	biddingHandlers := bidding.NewGinHandlers(biddingService)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	setupRoutes(router, simulationJWT, authHandlers, auctionHandlers, biddingHandlers, settlementHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers with the same
// auth middleware as the production wiring, minus rate limiting so the
// simulation can drive load
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
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

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

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/settlement/:auction_id", settlementHandlers.SettleAuctionHandler())
			internal.POST("/transactions/:transaction_id/delivery", settlementHandlers.UpdateDeliveryStatusHandler())
		}
	}
}
