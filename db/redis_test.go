package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("REDIS_URL") == "" {
		t.Skip("REDIS_URL not set")
	}

	require.NoError(t, InitRedis())
	t.Cleanup(func() {
		CloseRedis()
		RedisClient = nil
	})
}

func TestPendingBets(t *testing.T) {
	initTestRedis(t)
	ctx := context.Background()

	const bucket = int64(-424242) // far outside any real bucket
	RedisClient.Del(ctx, pendingBetsKey(bucket))
	defer RedisClient.Del(ctx, pendingBetsKey(bucket))

	bet := &PendingBet{
		BetID:       "7",
		Player:      "0xTestPlayer",
		PriceBucket: 3,
		TimeBucket:  bucket,
		Amount:      "1000",
		TxHash:      "0xabc",
		PlacedAt:    time.Now().UTC().Truncate(time.Second),
	}
	added, err := StorePendingBet(ctx, bet)
	require.NoError(t, err)
	assert.True(t, added)

	again := *bet
	again.Amount = "2000"
	added, err = StorePendingBet(ctx, &again)
	require.NoError(t, err)
	assert.False(t, added, "a queued bet is not overwritten")

	due, err := DueBuckets(ctx, bucket+1)
	require.NoError(t, err)
	assert.Contains(t, due, bucket)

	notYet, err := DueBuckets(ctx, bucket)
	require.NoError(t, err)
	assert.NotContains(t, notYet, bucket)

	bets, err := GetPendingBets(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, bet.BetID, bets[0].BetID)
	assert.Equal(t, bet.Player, bets[0].Player)
	assert.Equal(t, bet.PriceBucket, bets[0].PriceBucket)
	assert.Equal(t, bet.Amount, bets[0].Amount)
	assert.True(t, bet.PlacedAt.Equal(bets[0].PlacedAt))
	assert.Empty(t, bets[0].SettleTxHash)

	bet.SettleTxHash = "0xdef"
	require.NoError(t, UpdatePendingBet(ctx, bet))
	bets, err = GetPendingBets(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, "0xdef", bets[0].SettleTxHash)

	require.NoError(t, RemovePendingBet(ctx, bucket, bet.BetID))

	due, err = DueBuckets(ctx, bucket+1)
	require.NoError(t, err)
	assert.NotContains(t, due, bucket)
}

func TestPriceHistory(t *testing.T) {
	initTestRedis(t)
	ctx := context.Background()

	feed := "test-feed"
	RedisClient.Del(ctx, priceHistoryKey(feed))
	defer RedisClient.Del(ctx, priceHistoryKey(feed))

	for _, tick := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, PushPriceTick(ctx, feed, []byte(tick)))
	}

	ticks, err := GetPriceHistory(ctx, feed, 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.JSONEq(t, `{"n":2}`, string(ticks[0]))
	assert.JSONEq(t, `{"n":3}`, string(ticks[1]))
}
