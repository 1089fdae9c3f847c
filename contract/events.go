package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BetPlacedEvent is a decoded BetPlaced log.
type BetPlacedEvent struct {
	BetID       *big.Int
	Player      common.Address
	PriceBucket uint64
	TimeBucket  uint64
	Amount      *big.Int
	TxHash      common.Hash
}

// BetSettledEvent is a decoded BetSettled log.
type BetSettledEvent struct {
	BetID  *big.Int
	Won    bool
	Payout *big.Int
	TxHash common.Hash
}

var (
	ErrNoBetPlaced  = errors.New("no BetPlaced event in receipt")
	ErrNoBetSettled = errors.New("no BetSettled event in receipt")

	// ErrSettleReverted marks a settle transaction that was mined but failed.
	ErrSettleReverted = errors.New("settle transaction reverted")
)

// ParseBetPlaced returns the first BetPlaced event emitted by contractAddr in
// the receipt.
func ParseBetPlaced(receipt *types.Receipt, contractAddr common.Address) (*BetPlacedEvent, error) {
	event := gridHouseABI.Events[EventBetPlaced]

	for _, lg := range receipt.Logs {
		if lg.Address != contractAddr || len(lg.Topics) != 3 || lg.Topics[0] != event.ID {
			continue
		}

		var body struct {
			PriceBucket uint64
			TimeBucket  uint64
			Amount      *big.Int
		}
		if err := gridHouseABI.UnpackIntoInterface(&body, EventBetPlaced, lg.Data); err != nil {
			return nil, fmt.Errorf("failed to decode BetPlaced: %w", err)
		}

		return &BetPlacedEvent{
			BetID:       new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			Player:      common.BytesToAddress(lg.Topics[2].Bytes()),
			PriceBucket: body.PriceBucket,
			TimeBucket:  body.TimeBucket,
			Amount:      body.Amount,
			TxHash:      lg.TxHash,
		}, nil
	}

	return nil, ErrNoBetPlaced
}

// ParseBetSettled returns the first BetSettled event emitted by contractAddr
// in the receipt.
func ParseBetSettled(receipt *types.Receipt, contractAddr common.Address) (*BetSettledEvent, error) {
	event := gridHouseABI.Events[EventBetSettled]

	for _, lg := range receipt.Logs {
		if lg.Address != contractAddr || len(lg.Topics) != 2 || lg.Topics[0] != event.ID {
			continue
		}

		var body struct {
			Won    bool
			Payout *big.Int
		}
		if err := gridHouseABI.UnpackIntoInterface(&body, EventBetSettled, lg.Data); err != nil {
			return nil, fmt.Errorf("failed to decode BetSettled: %w", err)
		}

		return &BetSettledEvent{
			BetID:  new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			Won:    body.Won,
			Payout: body.Payout,
			TxHash: lg.TxHash,
		}, nil
	}

	return nil, ErrNoBetSettled
}
