package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gridServer/config"

	"github.com/redis/go-redis/v9"
)

var (
	// RedisClient is the global Redis client instance
	RedisClient *redis.Client
)

// PendingBet is a placed bet waiting for its time bucket to elapse.
// Multipliers are never stored here; the contract computes the payout.
type PendingBet struct {
	BetID       string    `json:"betId"`
	Player      string    `json:"player"`
	PriceBucket int       `json:"priceBucket"`
	TimeBucket  int64     `json:"timeBucket"`
	Amount      string    `json:"amount"` // Wei as string
	TxHash      string    `json:"txHash"`
	PlacedAt    time.Time `json:"placedAt"`

	// SettleTxHash is set once settle has been sent; the bet stays queued
	// until its outcome is recorded.
	SettleTxHash string `json:"settleTxHash,omitempty"`
}

// InitRedis initializes the Redis client connection
func InitRedis() error {
	log.Println("🔌 Connecting to Redis...")

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisURL,
		Password:     redisPassword,
		DB:           redisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	log.Printf("✅ Redis connected successfully - URL: %s", redisURL)
	return nil
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		log.Println("🔌 Closing Redis connection...")
		return RedisClient.Close()
	}
	return nil
}

func pendingBetsKey(timeBucket int64) string {
	return fmt.Sprintf(config.RedisPendingBetsKey, timeBucket)
}

func priceHistoryKey(feedID string) string {
	return fmt.Sprintf(config.RedisPriceHistoryKey, feedID)
}

/* =========================
   PENDING BETS
   Key: grid:bets:{timeBucket} -> Hash{betId: json}
   Key: grid:bets:index -> ZSet{timeBucket scored by timeBucket}
========================= */

// StorePendingBet indexes a bet under its time bucket. It reports false,
// leaving the stored entry untouched, when the bet is already queued.
func StorePendingBet(ctx context.Context, bet *PendingBet) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("redis not initialized")
	}

	data, err := json.Marshal(bet)
	if err != nil {
		return false, fmt.Errorf("failed to marshal pending bet: %w", err)
	}

	hashKey := pendingBetsKey(bet.TimeBucket)
	pipe := RedisClient.TxPipeline()
	added := pipe.HSetNX(ctx, hashKey, bet.BetID, data)
	pipe.Expire(ctx, hashKey, config.PendingBetTTL)
	pipe.ZAdd(ctx, config.RedisPendingIndexKey, redis.Z{
		Score:  float64(bet.TimeBucket),
		Member: strconv.FormatInt(bet.TimeBucket, 10),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to store pending bet: %w", err)
	}
	if !added.Val() {
		return false, nil
	}

	log.Printf("✅ Stored pending bet - ID: %s, Player: %s, Cell: (%d, %d)",
		bet.BetID, bet.Player, bet.PriceBucket, bet.TimeBucket)
	return true, nil
}

// UpdatePendingBet rewrites a queued bet in place.
func UpdatePendingBet(ctx context.Context, bet *PendingBet) error {
	if RedisClient == nil {
		return fmt.Errorf("redis not initialized")
	}

	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to marshal pending bet: %w", err)
	}
	if err := RedisClient.HSet(ctx, pendingBetsKey(bet.TimeBucket), bet.BetID, data).Err(); err != nil {
		return fmt.Errorf("failed to update pending bet: %w", err)
	}
	return nil
}

// GetPendingBets returns every pending bet of a time bucket.
func GetPendingBets(ctx context.Context, timeBucket int64) ([]*PendingBet, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("redis not initialized")
	}

	data, err := RedisClient.HGetAll(ctx, pendingBetsKey(timeBucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending bets: %w", err)
	}

	bets := make([]*PendingBet, 0, len(data))
	for betID, raw := range data {
		var bet PendingBet
		if err := json.Unmarshal([]byte(raw), &bet); err != nil {
			log.Printf("⚠️  Failed to unmarshal pending bet %s: %v", betID, err)
			continue
		}
		bets = append(bets, &bet)
	}
	return bets, nil
}

// RemovePendingBet drops a bet once its settlement is recorded. The bucket
// leaves the index when its hash is empty.
func RemovePendingBet(ctx context.Context, timeBucket int64, betID string) error {
	if RedisClient == nil {
		return fmt.Errorf("redis not initialized")
	}

	hashKey := pendingBetsKey(timeBucket)
	if err := RedisClient.HDel(ctx, hashKey, betID).Err(); err != nil {
		return fmt.Errorf("failed to delete pending bet: %w", err)
	}

	left, err := RedisClient.HLen(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("failed to count pending bets: %w", err)
	}
	if left == 0 {
		RedisClient.ZRem(ctx, config.RedisPendingIndexKey, strconv.FormatInt(timeBucket, 10))
	}
	return nil
}

// DueBuckets returns time buckets with pending bets strictly before
// beforeBucket, oldest first.
func DueBuckets(ctx context.Context, beforeBucket int64) ([]int64, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("redis not initialized")
	}

	members, err := RedisClient.ZRangeByScore(ctx, config.RedisPendingIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(beforeBucket, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get due buckets: %w", err)
	}

	buckets := make([]int64, 0, len(members))
	for _, m := range members {
		b, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			log.Printf("⚠️  Bad bucket in pending index: %q", m)
			continue
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

/* =========================
   PRICE HISTORY
   Key: grid:prices:{feedId} -> List (newest first)
========================= */

// PushPriceTick prepends an encoded tick and trims the list to
// PriceHistorySize entries.
func PushPriceTick(ctx context.Context, feedID string, tick []byte) error {
	if RedisClient == nil {
		return nil
	}

	key := priceHistoryKey(feedID)
	pipe := RedisClient.Pipeline()
	pipe.LPush(ctx, key, tick)
	pipe.LTrim(ctx, key, 0, config.PriceHistorySize-1)
	pipe.Expire(ctx, key, config.PriceHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push price tick: %w", err)
	}
	return nil
}

// GetPriceHistory returns up to limit ticks, oldest first.
func GetPriceHistory(ctx context.Context, feedID string, limit int) ([]json.RawMessage, error) {
	if RedisClient == nil {
		return []json.RawMessage{}, nil
	}

	raw, err := RedisClient.LRange(ctx, priceHistoryKey(feedID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	ticks := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		ticks[len(raw)-1-i] = json.RawMessage(r)
	}
	return ticks, nil
}

/* =========================
   HEALTH CHECK
========================= */

// HealthCheck performs a Redis health check
func HealthCheck(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("redis not initialized")
	}
	return RedisClient.Ping(ctx).Err()
}
