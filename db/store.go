package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"gridServer/config"
)

// GridStore exposes the package-level Redis and Postgres helpers as a value
// the settlement keeper can depend on through an interface.
type GridStore struct{}

func (GridStore) DueBuckets(ctx context.Context, beforeBucket int64) ([]int64, error) {
	return DueBuckets(ctx, beforeBucket)
}

func (GridStore) PendingBets(ctx context.Context, timeBucket int64) ([]*PendingBet, error) {
	return GetPendingBets(ctx, timeBucket)
}

func (GridStore) RemovePendingBet(ctx context.Context, timeBucket int64, betID string) error {
	return RemovePendingBet(ctx, timeBucket, betID)
}

// MarkSubmitted records bet.SettleTxHash on both the queued entry and the
// history row.
func (GridStore) MarkSubmitted(ctx context.Context, bet *PendingBet) error {
	return errors.Join(
		UpdatePendingBet(ctx, bet),
		MarkBetSubmitted(ctx, bet.BetID, bet.SettleTxHash),
	)
}

func (GridStore) MarkFailed(ctx context.Context, betID string) error {
	return MarkBetFailed(ctx, betID)
}

// MarkSettled stores the outcome and credits any payout to the player's PnL.
// Recording the same settlement twice credits once.
func (GridStore) MarkSettled(ctx context.Context, bet *PendingBet, won bool, payout *big.Int) error {
	_, err := MarkBetSettled(ctx, bet, won, payout)
	return err
}

// RecordBet stores the history row of a freshly placed bet, queues it for
// settlement and debits the stake from the player's PnL. It reports false
// without touching PnL when the bet was already registered.
func (GridStore) RecordBet(ctx context.Context, bet *PendingBet, record *BetRecord) (bool, error) {
	stake, ok := new(big.Int).SetString(bet.Amount, 10)
	if !ok {
		return false, fmt.Errorf("invalid bet amount %q", bet.Amount)
	}

	inserted, err := StoreBetRecord(ctx, record)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	queued, err := StorePendingBet(ctx, bet)
	if err != nil {
		if delErr := DeleteBetRecord(ctx, record.BetID); delErr != nil {
			log.Printf("⚠️  Failed to roll back bet %s: %v", record.BetID, delErr)
		}
		return false, err
	}
	if !queued {
		return false, nil
	}

	if err := SubtractWalletPnL(ctx, bet.Player, config.WeiToMNT(stake)); err != nil {
		log.Printf("⚠️  Bet %s recorded but stake not debited: %v", bet.BetID, err)
	}
	return true, nil
}
