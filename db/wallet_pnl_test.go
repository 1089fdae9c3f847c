package db

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestPostgres(t *testing.T) {
	t.Helper()
	_ = godotenv.Load("../.env")

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, InitPostgres())
	t.Cleanup(func() {
		ClosePostgres()
		PostgresPool = nil
	})
}

func TestWalletPnL(t *testing.T) {
	initTestPostgres(t)

	ctx := context.Background()
	testWallet := "0xTestWallet123456789012345678901234567890"

	_, _ = PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", testWallet)
	defer PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", testWallet)

	t.Run("SubtractWalletPnL_NewWallet", func(t *testing.T) {
		require.NoError(t, SubtractWalletPnL(ctx, testWallet, 10.0))

		record, err := GetWalletPnLRank(ctx, testWallet)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, -10.0, record.Amount)
	})

	t.Run("AddWalletPnL_ExistingWallet", func(t *testing.T) {
		require.NoError(t, AddWalletPnL(ctx, testWallet, 25.0))

		record, err := GetWalletPnLRank(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, 15.0, record.Amount)
	})

	t.Run("GetWalletPnLLeaderboard", func(t *testing.T) {
		testWallets := []struct {
			addr   string
			amount float64
		}{
			{"0xTestLeader1_1111111111111111111111111111", 100.0},
			{"0xTestLeader2_2222222222222222222222222222", 50.0},
			{"0xTestLeader3_3333333333333333333333333333", 25.0},
		}

		for _, w := range testWallets {
			_, _ = PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", w.addr)
			_, _ = PostgresPool.Exec(ctx, "INSERT INTO wallet_pnl (wallet_address, amount) VALUES ($1, $2)", w.addr, w.amount)
		}
		defer func() {
			for _, w := range testWallets {
				PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", w.addr)
			}
		}()

		records, err := GetWalletPnLLeaderboard(ctx, 10)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(records), 3)
		assert.GreaterOrEqual(t, records[0].Amount, records[len(records)-1].Amount)
	})
}

func TestBetRecordLifecycle(t *testing.T) {
	initTestPostgres(t)

	ctx := context.Background()
	betID := "test-bet-990001"
	player := "0xTestPlayer_990001"

	_, _ = PostgresPool.Exec(ctx, "DELETE FROM grid_bets WHERE bet_id = $1", betID)
	_, _ = PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", player)
	defer PostgresPool.Exec(ctx, "DELETE FROM grid_bets WHERE bet_id = $1", betID)
	defer PostgresPool.Exec(ctx, "DELETE FROM wallet_pnl WHERE wallet_address = $1", player)

	record := &BetRecord{
		BetID:               betID,
		Player:              player,
		PriceBucket:         12,
		TimeBucket:          103,
		Amount:              "1000000000000000",
		QuotedMultiplierBps: 12_500,
		TxHash:              "0xabc",
	}
	inserted, err := StoreBetRecord(ctx, record)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = StoreBetRecord(ctx, record)
	require.NoError(t, err)
	assert.False(t, inserted, "registering twice does not insert")

	got, err := GetBet(ctx, betID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, BetStatusPending, got.Status)
	assert.Equal(t, "1000000000000000", got.Amount)

	require.NoError(t, MarkBetSubmitted(ctx, betID, "0xdef"))

	bet := &PendingBet{BetID: betID, Player: player}
	payout, _ := new(big.Int).SetString("1250000000000000000", 10)
	settled, err := MarkBetSettled(ctx, bet, true, payout)
	require.NoError(t, err)
	assert.True(t, settled)

	// A repeated settlement credits nothing.
	settled, err = MarkBetSettled(ctx, bet, true, payout)
	require.NoError(t, err)
	assert.False(t, settled)

	pnl, err := GetWalletPnLRank(ctx, player)
	require.NoError(t, err)
	require.NotNil(t, pnl)
	assert.InDelta(t, 1.25, pnl.Amount, 1e-9)

	got, err = GetBet(ctx, betID)
	require.NoError(t, err)
	assert.Equal(t, BetStatusSettled, got.Status)
	require.NotNil(t, got.Won)
	assert.True(t, *got.Won)
	require.NotNil(t, got.Payout)
	assert.Equal(t, "1250000000000000000", *got.Payout)
	require.NotNil(t, got.SettleTxHash)
	assert.Equal(t, "0xdef", *got.SettleTxHash)
}

func TestGetBetWithoutPostgres(t *testing.T) {
	saved := PostgresPool
	PostgresPool = nil
	defer func() { PostgresPool = saved }()

	got, err := GetBet(context.Background(), "1")
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
	assert.Nil(t, got)
}
