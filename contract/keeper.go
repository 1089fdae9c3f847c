package contract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"gridServer/config"
	"gridServer/db"
	"gridServer/game"

	"github.com/ethereum/go-ethereum/common"
)

// Settler submits settlement transactions for the keeper account.
type Settler interface {
	Settle(ctx context.Context, betID *big.Int) (common.Hash, error)
	WaitSettled(ctx context.Context, txHash common.Hash) (*BetSettledEvent, error)
	Balance(ctx context.Context) (*big.Int, error)
}

// BetStore is the keeper's view of pending and historical bets.
type BetStore interface {
	DueBuckets(ctx context.Context, beforeBucket int64) ([]int64, error)
	PendingBets(ctx context.Context, timeBucket int64) ([]*db.PendingBet, error)
	RemovePendingBet(ctx context.Context, timeBucket int64, betID string) error
	MarkSubmitted(ctx context.Context, bet *db.PendingBet) error
	MarkSettled(ctx context.Context, bet *db.PendingBet, won bool, payout *big.Int) error
	MarkFailed(ctx context.Context, betID string) error
}

// Keeper settles bets once their time bucket has fully elapsed. The contract
// decides the outcome; the keeper only pays the gas to trigger it.
//
// A bet stays queued until its outcome is recorded. Bets whose settle
// transaction was sent but not confirmed are re-checked on the next pass
// rather than settled again.
type Keeper struct {
	settler Settler
	store   BetStore
	market  game.MarketConfig
	clock   func() int64

	// OnSettled, when set, is called after a settlement is mined.
	OnSettled func(bet *db.PendingBet, ev *BetSettledEvent)

	inFlight      map[string]bool
	inFlightMutex sync.Mutex
	wg            sync.WaitGroup
}

// NewKeeper creates a keeper that reads wall-clock seconds from clock.
func NewKeeper(settler Settler, store BetStore, market game.MarketConfig, clock func() int64) *Keeper {
	return &Keeper{
		settler:  settler,
		store:    store,
		market:   market,
		clock:    clock,
		inFlight: make(map[string]bool),
	}
}

// Run settles due bets every KeeperInterval and checks the keeper balance
// every KeeperBalanceCheck until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	log.Println("🧾 Settlement keeper started")

	settleTicker := time.NewTicker(config.KeeperInterval)
	defer settleTicker.Stop()
	balanceTicker := time.NewTicker(config.KeeperBalanceCheck)
	defer balanceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.wg.Wait()
			return nil
		case <-settleTicker.C:
			if _, err := k.RunOnce(ctx); err != nil {
				log.Printf("⚠️  Keeper pass failed: %v", err)
			}
		case <-balanceTicker.C:
			if err := k.MonitorBalance(ctx, config.KeeperMinBalance); err != nil {
				log.Printf("⚠️ Warning: %v", err)
			}
		}
	}
}

// RunOnce submits settle for every pending bet in a bucket before the current
// one and returns how many transactions were sent. Bets already submitted
// only have their receipt checked.
func (k *Keeper) RunOnce(ctx context.Context) (int, error) {
	current, err := game.CurrentBucket(k.clock(), k.market.TimeBucketSeconds)
	if err != nil {
		return 0, err
	}

	buckets, err := k.store.DueBuckets(ctx, current)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, bucket := range buckets {
		bets, err := k.store.PendingBets(ctx, bucket)
		if err != nil {
			return sent, err
		}
		for _, bet := range bets {
			if !k.claim(bet.BetID) {
				continue
			}
			if bet.SettleTxHash != "" {
				k.await(bet, common.HexToHash(bet.SettleTxHash))
				continue
			}
			if k.settle(ctx, bet) {
				sent++
			}
		}
	}
	return sent, nil
}

// Wait blocks until every in-flight settlement receipt has been processed.
func (k *Keeper) Wait() {
	k.wg.Wait()
}

// claim marks betID as being handled. It returns false when a receipt for
// the bet is still being awaited.
func (k *Keeper) claim(betID string) bool {
	k.inFlightMutex.Lock()
	defer k.inFlightMutex.Unlock()
	if k.inFlight[betID] {
		return false
	}
	k.inFlight[betID] = true
	return true
}

func (k *Keeper) release(betID string) {
	k.inFlightMutex.Lock()
	delete(k.inFlight, betID)
	k.inFlightMutex.Unlock()
}

func (k *Keeper) settle(ctx context.Context, bet *db.PendingBet) bool {
	betID, ok := new(big.Int).SetString(bet.BetID, 10)
	if !ok {
		log.Printf("❌ Pending bet has non-numeric id %q, dropping", bet.BetID)
		k.drop(ctx, bet)
		return false
	}

	txHash, err := k.settler.Settle(ctx, betID)
	if err != nil {
		log.Printf("❌ settle failed for bet %s: %v", bet.BetID, err)
		k.drop(ctx, bet)
		return false
	}

	bet.SettleTxHash = txHash.Hex()
	if err := k.store.MarkSubmitted(ctx, bet); err != nil {
		log.Printf("⚠️  Failed to record settle tx for bet %s: %v", bet.BetID, err)
	}

	k.await(bet, txHash)
	return true
}

func (k *Keeper) await(bet *db.PendingBet, txHash common.Hash) {
	k.wg.Add(1)
	go k.awaitSettlement(bet, txHash)
}

func (k *Keeper) awaitSettlement(bet *db.PendingBet, txHash common.Hash) {
	defer k.wg.Done()
	defer k.release(bet.BetID)

	ctx, cancel := context.WithTimeout(context.Background(), config.TransactionTimeout)
	defer cancel()

	ev, err := k.settler.WaitSettled(ctx, txHash)
	if errors.Is(err, ErrSettleReverted) || errors.Is(err, ErrNoBetSettled) {
		log.Printf("❌ Settlement of bet %s failed: %v", bet.BetID, err)
		k.drop(ctx, bet)
		return
	}
	if err != nil {
		log.Printf("⚠️  Settlement of bet %s not confirmed, will recheck: %v", bet.BetID, err)
		return
	}

	if err := k.store.MarkSettled(ctx, bet, ev.Won, ev.Payout); err != nil {
		log.Printf("⚠️  Failed to record settlement of bet %s, will retry: %v", bet.BetID, err)
		return
	}
	k.removePending(ctx, bet)

	if k.OnSettled != nil {
		k.OnSettled(bet, ev)
	}
}

// drop marks a bet failed and takes it off the queue.
func (k *Keeper) drop(ctx context.Context, bet *db.PendingBet) {
	k.markFailed(ctx, bet.BetID)
	k.removePending(ctx, bet)
	k.release(bet.BetID)
}

func (k *Keeper) removePending(ctx context.Context, bet *db.PendingBet) {
	if err := k.store.RemovePendingBet(ctx, bet.TimeBucket, bet.BetID); err != nil {
		log.Printf("⚠️  Failed to remove pending bet %s: %v", bet.BetID, err)
	}
}

func (k *Keeper) markFailed(ctx context.Context, betID string) {
	if err := k.store.MarkFailed(ctx, betID); err != nil {
		log.Printf("⚠️  Failed to mark bet %s failed: %v", betID, err)
	}
}

// MonitorBalance checks the keeper can still pay for settlements.
func (k *Keeper) MonitorBalance(ctx context.Context, minBalance *big.Int) error {
	balance, err := k.settler.Balance(ctx)
	if err != nil {
		return err
	}

	if balance.Cmp(minBalance) < 0 {
		return fmt.Errorf("keeper balance too low: %s (minimum: %s)",
			balance.String(), minBalance.String())
	}

	return nil
}
