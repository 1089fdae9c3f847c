package config

import (
	"math/big"
	"time"
)

/* =========================
   NETWORK CONFIGURATION
========================= */

const (
	// Mantle Sepolia Testnet
	DefaultRPCURL  = "https://rpc.sepolia.mantle.xyz"
	DefaultChainID = 5003
)

/* =========================
   CONTRACT CONFIGURATION
========================= */

const (
	// GridHouse contract, overridable with GRID_CONTRACT_ADDRESS
	DefaultContractAddress = "0x5b3F0e5a1D3c7f2a8e9B4d6C1a0F7e2D3c4B5a69"
)

/* =========================
   ORACLE CONFIGURATION
========================= */

const (
	// Pyth Hermes price stream
	DefaultOracleWSURL = "wss://hermes.pyth.network/ws"

	// ETH/USD feed
	DefaultPriceFeedID = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

	// Ticks kept per feed for chart backfill
	PriceHistorySize = 600
)

/* =========================
   GRID DEFAULTS
========================= */

const (
	DefaultNumPriceBuckets    = 21
	DefaultMidPriceBucket     = 10
	DefaultTimeBucketSeconds  = 10
	DefaultLockedColumnsAhead = 1

	// Stake bounds in wei (18 decimals)
	DefaultMinBetSize = 1_000_000_000_000_000     // 0.001 MNT
	DefaultMaxBetSize = 5_000_000_000_000_000_000 // 5 MNT

	// Columns pushed to grid subscribers
	DefaultVisibleColumns = 12
	MaxVisibleColumns     = 120

	// One tick per second, shared by every grid consumer
	GridTickInterval = 1 * time.Second
)

/* =========================
   REDIS TTL CONFIGURATION
========================= */

const (
	// Pending bet index per time bucket
	// Key: grid:bets:{timeBucket}
	PendingBetTTL = 2 * time.Hour

	// Price history ring per feed
	// Key: grid:prices:{feedId}
	PriceHistoryTTL = 1 * time.Hour
)

/* =========================
   REDIS KEY PATTERNS
========================= */

const (
	RedisPendingBetsKey  = "grid:bets:%d"    // grid:bets:{timeBucket} (HASH betId -> json)
	RedisPendingIndexKey = "grid:bets:index" // ZSET of time buckets with pending bets
	RedisPriceHistoryKey = "grid:prices:%s"  // grid:prices:{feedId} (LIST, newest first)
)

/* =========================
   KEEPER CONFIGURATION
========================= */

const (
	KeeperGasLimit     = 200000 // Fallback when estimation fails
	KeeperGasBufferPct = 20
	KeeperInterval     = 5 * time.Second
	KeeperBalanceCheck = 1 * time.Minute
	TransactionTimeout = 30 * time.Second
)

// KeeperMinBalance is 0.05 MNT.
var KeeperMinBalance = big.NewInt(50_000_000_000_000_000)

/* =========================
   API CONFIGURATION
========================= */

const (
	ServerPort = "8080"
	ServerHost = "0.0.0.0"

	// CORS settings
	AllowOrigin = "*"

	// Rate limiting
	MaxRequestsPerSecond = 100

	LeaderboardSize = 20
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	WSReadDeadline  = 60 * time.Second
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second

	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSSendBufferSize  = 256

	MaxMessageSize = 512 * 1024 // 512KB
)

/* =========================
   HELPER FUNCTIONS
========================= */

// WeiToMNT converts wei to MNT for logs and the PnL table.
func WeiToMNT(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	weiFloat := new(big.Float).SetInt(wei)
	divisor := new(big.Float).SetFloat64(1e18)
	result := new(big.Float).Quo(weiFloat, divisor)
	mnt, _ := result.Float64()
	return mnt
}
