package game

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

/* =========================
   PROTOCOL CONSTANTS
   Must match the GridHouse contract bit for bit.
========================= */

const (
	BpsDenominator  = 10_000
	BaseMultBps     = 10_500  // 1.05x
	DistanceStepBps = 600     // +0.06x per price row away from mid
	TimeStepBps     = 800     // +0.08x per time bucket past the minimum
	MinMultBps      = 10_000  // 1.00x floor
	MaxMultBps      = 100_000 // 10.00x cap
)

// CurrentBucket returns the absolute time bucket containing nowSeconds.
func CurrentBucket(nowSeconds, timeBucketSeconds int64) (int64, error) {
	if timeBucketSeconds <= 0 {
		return 0, fmt.Errorf("%w: timeBucketSeconds must be > 0, got %d", ErrConfiguration, timeBucketSeconds)
	}
	if nowSeconds < 0 {
		return 0, fmt.Errorf("%w: negative wall-clock time %d", ErrInvalidCoordinate, nowSeconds)
	}
	return nowSeconds / timeBucketSeconds, nil
}

// EarliestBettableBucket returns the first bucket the contract accepts bets
// for: the current bucket and the next lockedColumnsAhead buckets are locked.
func EarliestBettableBucket(nowSeconds, timeBucketSeconds int64, lockedColumnsAhead int) (int64, error) {
	if lockedColumnsAhead < 0 {
		return 0, fmt.Errorf("%w: lockedColumnsAhead must be >= 0, got %d", ErrConfiguration, lockedColumnsAhead)
	}
	current, err := CurrentBucket(nowSeconds, timeBucketSeconds)
	if err != nil {
		return 0, err
	}
	if int64(lockedColumnsAhead) >= math.MaxInt64-current {
		return 0, fmt.Errorf("%w: no bettable bucket after %d", ErrInvalidCoordinate, current)
	}
	return current + int64(lockedColumnsAhead) + 1, nil
}

// ColumnIndexToBucket maps a zero-based bettable column to its absolute bucket.
func ColumnIndexToBucket(columnIndex int, earliestBettableBucket int64) (int64, error) {
	if columnIndex < 0 {
		return 0, fmt.Errorf("%w: column %d is locked", ErrInvalidCoordinate, columnIndex)
	}
	if earliestBettableBucket > math.MaxInt64-int64(columnIndex) {
		return 0, fmt.Errorf("%w: column %d past the last bucket", ErrInvalidCoordinate, columnIndex)
	}
	return earliestBettableBucket + int64(columnIndex), nil
}

// ComputeMultiplierBps returns the payout multiplier, in basis points, for a
// bet on (priceBucket, targetBucket) evaluated at nowSeconds.
//
// The locked-column rule is not enforced here; use ValidateBet before placing
// a bet. Terms saturate at MaxMultBps so the result is clamped for any input.
func ComputeMultiplierBps(cfg MarketConfig, priceBucket int, targetBucket, nowSeconds int64) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if !cfg.ValidPriceBucket(priceBucket) {
		return 0, fmt.Errorf("%w: priceBucket %d outside [0, %d)", ErrInvalidCoordinate, priceBucket, cfg.NumPriceBuckets)
	}
	current, err := CurrentBucket(nowSeconds, cfg.TimeBucketSeconds)
	if err != nil {
		return 0, err
	}

	priceDistance := int64(priceBucket - cfg.MidPriceBucket)
	if priceDistance < 0 {
		priceDistance = -priceDistance
	}
	if priceDistance > MaxMultBps/DistanceStepBps {
		return MaxMultBps, nil
	}

	var timeSteps int64
	minTimeDistance := int64(cfg.LockedColumnsAhead) + 1
	if targetBucket > current {
		timeDistance := targetBucket - current
		if timeDistance > minTimeDistance {
			timeSteps = timeDistance - minTimeDistance
		}
	}
	if timeSteps > MaxMultBps/TimeStepBps {
		return MaxMultBps, nil
	}

	raw := BaseMultBps + priceDistance*DistanceStepBps + timeSteps*TimeStepBps
	return clampBps(raw), nil
}

func clampBps(raw int64) int64 {
	if raw < MinMultBps {
		return MinMultBps
	}
	if raw > MaxMultBps {
		return MaxMultBps
	}
	return raw
}

// FormatMultiplier renders basis points as a two-decimal multiplier, e.g.
// 12500 -> "1.25x". Display only.
func FormatMultiplier(bps int64) string {
	return decimal.New(bps, -4).StringFixed(2) + "x"
}
