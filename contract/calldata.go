package contract

import (
	"fmt"
	"math/big"

	"gridServer/game"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PlaceBetCall is an unsigned placeBet transaction for the player's wallet.
// The multiplier is informational; the contract recomputes it.
type PlaceBetCall struct {
	To            string `json:"to"`
	Data          string `json:"data"`
	Value         string `json:"value"` // Wei as string
	PriceBucket   int    `json:"priceBucket"`
	TimeBucket    int64  `json:"timeBucket"`
	Column        int    `json:"column"`
	NowSeconds    int64  `json:"nowSeconds"`
	MultiplierBps int64  `json:"multiplierBps"`
	Display       string `json:"display"`
}

// BuildPlaceBet turns a UI column into placeBet calldata. nowSeconds must come
// from the same clock the grid was rendered with, otherwise a bucket boundary
// may fall between what the player saw and what gets submitted.
func BuildPlaceBet(cfg game.MarketConfig, to common.Address, nowSeconds int64, priceBucket, columnIndex int, stake uint64) (*PlaceBetCall, error) {
	earliest, err := game.EarliestBettableBucket(nowSeconds, cfg.TimeBucketSeconds, cfg.LockedColumnsAhead)
	if err != nil {
		return nil, err
	}
	target, err := game.ColumnIndexToBucket(columnIndex, earliest)
	if err != nil {
		return nil, err
	}
	if err := game.ValidateBet(cfg, priceBucket, target, nowSeconds, stake); err != nil {
		return nil, err
	}
	bps, err := game.ComputeMultiplierBps(cfg, priceBucket, target, nowSeconds)
	if err != nil {
		return nil, err
	}

	input, err := gridHouseABI.Pack(MethodPlaceBet, uint64(priceBucket), uint64(target))
	if err != nil {
		return nil, fmt.Errorf("failed to pack placeBet: %w", err)
	}

	return &PlaceBetCall{
		To:            to.Hex(),
		Data:          hexutil.Encode(input),
		Value:         new(big.Int).SetUint64(stake).String(),
		PriceBucket:   priceBucket,
		TimeBucket:    target,
		Column:        columnIndex,
		NowSeconds:    nowSeconds,
		MultiplierBps: bps,
		Display:       game.FormatMultiplier(bps),
	}, nil
}
