package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gridServer/api"
	"gridServer/config"
	"gridServer/contract"
	"gridServer/db"
	"gridServer/game"
	"gridServer/oracle"
	"gridServer/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables")
	} else {
		log.Println("✅ Loaded environment variables from .env")
	}

	// A malformed market must never reach the grid or the keeper.
	market, err := config.LoadMarket(config.Env("GRID_MARKET_FILE", "market.toml"))
	if err != nil {
		log.Fatalf("❌ Market configuration rejected: %v", err)
	}
	log.Printf("📐 Market: %d price rows (mid %d), %ds buckets, %d locked column(s), stake %s-%s wei",
		market.NumPriceBuckets, market.MidPriceBucket, market.TimeBucketSeconds, market.LockedColumnsAhead,
		strconv.FormatUint(market.MinBetSize, 10), strconv.FormatUint(market.MaxBetSize, 10))

	// Initialize database connections
	if err := db.InitPostgres(); err != nil {
		log.Printf("⚠️  Warning: PostgreSQL initialization failed: %v", err)
		log.Println("   Bet history and leaderboard will be empty")
	}
	defer db.ClosePostgres()

	if err := db.InitRedis(); err != nil {
		log.Printf("⚠️  Warning: Redis initialization failed: %v", err)
		log.Println("   Bet registration and price history will not work")
	}
	defer db.CloseRedis()

	feedID := oracle.NormalizeFeedID(config.Env("ORACLE_FEED_ID", config.DefaultPriceFeedID))
	hub := ws.NewHub(market, ws.SystemClock, envInt("GRID_VISIBLE_COLUMNS", config.DefaultVisibleColumns), feedID)

	// Initialize contract client
	contractAddress := config.Env("GRID_CONTRACT_ADDRESS", config.DefaultContractAddress)
	var verifier api.BetVerifier
	var keeper *contract.Keeper

	gridHouse, err := contract.NewGridHouseContract(
		config.Env("GRID_RPC_URL", config.DefaultRPCURL),
		contractAddress,
		os.Getenv("KEEPER_PRIVATE_KEY"),
		int64(envInt("GRID_CHAIN_ID", config.DefaultChainID)),
	)
	if err != nil {
		log.Printf("⚠️  Warning: Contract client initialization failed: %v", err)
		log.Println("   Bets will not be verified on-chain and settlement is disabled")
	} else {
		defer gridHouse.Close()
		verifier = gridHouse
		keeper = contract.NewKeeper(gridHouse, db.GridStore{}, market, hub.Now)
		keeper.OnSettled = func(bet *db.PendingBet, ev *contract.BetSettledEvent) {
			hub.PublishBet("bet_settled", map[string]interface{}{
				"betId":       bet.BetID,
				"player":      bet.Player,
				"priceBucket": bet.PriceBucket,
				"timeBucket":  bet.TimeBucket,
				"won":         ev.Won,
				"payout":      ev.Payout.String(),
				"txHash":      ev.TxHash.Hex(),
			})
		}
	}

	server := api.NewServer(hub, db.GridStore{}, verifier, common.HexToAddress(contractAddress))
	addr := config.ServerHost + ":" + config.Env("PORT", config.ServerPort)
	oracleURL := config.Env("ORACLE_WS_URL", config.DefaultOracleWSURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return hub.RunGridTicker(ctx, config.GridTickInterval) })
	g.Go(func() error { return server.Run(ctx, addr) })

	ticks := make(chan oracle.PriceTick, 64)
	g.Go(func() error { return hub.RelayPrices(ctx, ticks) })
	g.Go(func() error {
		// An oracle outage only blanks the price chart.
		if err := oracle.NewStream(oracleURL, feedID).Run(ctx, ticks); err != nil {
			log.Printf("⚠️  Oracle stream stopped: %v", err)
		}
		return nil
	})

	if keeper != nil {
		g.Go(func() error { return keeper.Run(ctx) })
	}

	log.Println("")
	log.Println("📡 WebSocket Endpoint:")
	log.Printf("   ws://%s/ws - subscribe to '%s', '%s' or '%s'; send 'quote' for a cell multiplier",
		addr, ws.ChannelGrid, ws.ChannelPrice, ws.ChannelBets)
	log.Println("")
	log.Println("🔌 API Endpoints:")
	log.Println("   GET  /api/market - Market config and protocol constants")
	log.Println("   GET  /api/grid - Grid snapshot with multipliers")
	log.Println("   GET  /api/multiplier - Multiplier for one cell")
	log.Println("   POST /api/bet/build - placeBet calldata for a visible cell")
	log.Println("   POST /api/bet/register - Register a placed bet for settlement")
	log.Println("   GET  /api/bet/:betId - Bet status")
	log.Println("   GET  /api/bets/:player - Player bet history")
	log.Println("   GET  /api/leaderboard - Wallet PnL leaderboard")
	log.Println("   GET  /api/health - Health check")
	log.Printf("   Max multiplier %s, base %s", game.FormatMultiplier(game.MaxMultBps), game.FormatMultiplier(game.BaseMultBps))
	log.Println("")

	if err := g.Wait(); err != nil {
		log.Fatal("❌ Server error:", err)
	}
	log.Println("👋 Server stopped")
}

// envInt reads an integer env var, falling back on absence or parse failure.
func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Ignoring %s=%q: %v", key, raw, err)
		return fallback
	}
	return n
}
