package game

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarket() MarketConfig {
	return MarketConfig{
		NumPriceBuckets:    21,
		MidPriceBucket:     10,
		TimeBucketSeconds:  10,
		LockedColumnsAhead: 1,
		MinBetSize:         1_000,
		MaxBetSize:         1_000_000,
	}
}

func TestCurrentBucket(t *testing.T) {
	tests := []struct {
		now  int64
		want int64
	}{
		{0, 0},
		{9, 0},
		{1000, 100},
		{1005, 100},
		{1009, 100},
		{1010, 101},
	}
	for _, tt := range tests {
		got, err := CurrentBucket(tt.now, 10)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "now=%d", tt.now)
	}

	for now := int64(0); now < 500; now++ {
		got, err := CurrentBucket(now, 10)
		require.NoError(t, err)
		assert.Equal(t, now/10, got)
	}
}

func TestCurrentBucket_RejectsBadInput(t *testing.T) {
	_, err := CurrentBucket(1000, 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = CurrentBucket(1000, -10)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = CurrentBucket(-1, 10)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestEarliestBettableBucket(t *testing.T) {
	got, err := EarliestBettableBucket(1000, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(102), got)

	got, err = EarliestBettableBucket(1000, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got)

	_, err = EarliestBettableBucket(1000, 10, -1)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = EarliestBettableBucket(1000, 0, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestEarliestBettableBucket_NearMaxTime(t *testing.T) {
	got, err := EarliestBettableBucket(math.MaxInt64-1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = EarliestBettableBucket(math.MaxInt64, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = EarliestBettableBucket(math.MaxInt64-1, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = EarliestBettableBucket(0, 1, math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestColumnIndexToBucket(t *testing.T) {
	got, err := ColumnIndexToBucket(0, 102)
	require.NoError(t, err)
	assert.Equal(t, int64(102), got)

	got, err = ColumnIndexToBucket(5, 102)
	require.NoError(t, err)
	assert.Equal(t, int64(107), got)

	_, err = ColumnIndexToBucket(-1, 102)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	got, err = ColumnIndexToBucket(0, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = ColumnIndexToBucket(1, math.MaxInt64)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestComputeMultiplierBps_Scenarios(t *testing.T) {
	cfg := testMarket()

	t.Run("AtTheMoneyEarliestColumn", func(t *testing.T) {
		target, err := EarliestBettableBucket(1000, cfg.TimeBucketSeconds, cfg.LockedColumnsAhead)
		require.NoError(t, err)
		require.Equal(t, int64(102), target)

		bps, err := ComputeMultiplierBps(cfg, 10, target, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(10_500), bps)
		assert.Equal(t, "1.05x", FormatMultiplier(bps))
	})

	t.Run("OffCenterOneColumnOut", func(t *testing.T) {
		bps, err := ComputeMultiplierBps(cfg, 12, 103, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(12_500), bps)
		assert.Equal(t, "1.25x", FormatMultiplier(bps))
	})

	t.Run("ExtremeDistanceClamps", func(t *testing.T) {
		bps, err := ComputeMultiplierBps(cfg, 20, 1000, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(MaxMultBps), bps)
		assert.Equal(t, "10.00x", FormatMultiplier(bps))
	})

	t.Run("LockedOrPastBucketGetsNoTimeBonus", func(t *testing.T) {
		for _, target := range []int64{0, 99, 100, 101, 102} {
			bps, err := ComputeMultiplierBps(cfg, 10, target, 1000)
			require.NoError(t, err)
			assert.Equal(t, int64(BaseMultBps), bps, "target=%d", target)
		}
	})
}

func TestComputeMultiplierBps_Determinism(t *testing.T) {
	cfg := testMarket()
	first, err := ComputeMultiplierBps(cfg, 3, 110, 1234)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := ComputeMultiplierBps(cfg, 3, 110, 1234)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestComputeMultiplierBps_Symmetry(t *testing.T) {
	cfg := testMarket()
	for k := 0; k <= cfg.MidPriceBucket; k++ {
		for target := int64(100); target < 130; target++ {
			up, err := ComputeMultiplierBps(cfg, cfg.MidPriceBucket+k, target, 1000)
			require.NoError(t, err)
			down, err := ComputeMultiplierBps(cfg, cfg.MidPriceBucket-k, target, 1000)
			require.NoError(t, err)
			assert.Equal(t, up, down, "k=%d target=%d", k, target)
		}
	}
}

func TestComputeMultiplierBps_Monotonic(t *testing.T) {
	cfg := testMarket()

	// Non-decreasing in price distance.
	for target := int64(100); target < 140; target++ {
		prev := int64(0)
		for k := 0; k <= cfg.MidPriceBucket; k++ {
			bps, err := ComputeMultiplierBps(cfg, cfg.MidPriceBucket+k, target, 1000)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, bps, prev)
			prev = bps
		}
	}

	// Non-decreasing in time distance.
	for row := 0; row < cfg.NumPriceBuckets; row++ {
		prev := int64(0)
		for target := int64(100); target < 400; target++ {
			bps, err := ComputeMultiplierBps(cfg, row, target, 1000)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, bps, prev)
			prev = bps
		}
	}
}

func TestComputeMultiplierBps_AlwaysClamped(t *testing.T) {
	cfg := testMarket()
	targets := []int64{math.MinInt64, -1, 0, 100, 102, 10_000, math.MaxInt64}
	nows := []int64{0, 1000, 1 << 40, math.MaxInt64}
	for row := 0; row < cfg.NumPriceBuckets; row++ {
		for _, target := range targets {
			for _, now := range nows {
				bps, err := ComputeMultiplierBps(cfg, row, target, now)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, bps, int64(MinMultBps))
				assert.LessOrEqual(t, bps, int64(MaxMultBps))
			}
		}
	}

	wide := MarketConfig{NumPriceBuckets: math.MaxInt32, MidPriceBucket: 0, TimeBucketSeconds: 1}
	bps, err := ComputeMultiplierBps(wide, math.MaxInt32-1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxMultBps), bps)
}

func TestComputeMultiplierBps_Errors(t *testing.T) {
	cfg := testMarket()

	_, err := ComputeMultiplierBps(cfg, -1, 102, 1000)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = ComputeMultiplierBps(cfg, cfg.NumPriceBuckets, 102, 1000)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	bad := cfg
	bad.TimeBucketSeconds = 0
	_, err = ComputeMultiplierBps(bad, 10, 102, 1000)
	assert.ErrorIs(t, err, ErrConfiguration)

	bad = cfg
	bad.MidPriceBucket = 21
	_, err = ComputeMultiplierBps(bad, 10, 102, 1000)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, errors.Is(err, ErrInvalidCoordinate))
}

func TestFormatMultiplier(t *testing.T) {
	assert.Equal(t, "1.00x", FormatMultiplier(10_000))
	assert.Equal(t, "1.05x", FormatMultiplier(10_500))
	assert.Equal(t, "1.68x", FormatMultiplier(16_800))
	assert.Equal(t, "10.00x", FormatMultiplier(100_000))
}

func TestMarketConfigValidate(t *testing.T) {
	require.NoError(t, testMarket().Validate())

	cases := map[string]func(*MarketConfig){
		"no rows":         func(c *MarketConfig) { c.NumPriceBuckets = 0 },
		"mid negative":    func(c *MarketConfig) { c.MidPriceBucket = -1 },
		"mid too large":   func(c *MarketConfig) { c.MidPriceBucket = c.NumPriceBuckets },
		"zero duration":   func(c *MarketConfig) { c.TimeBucketSeconds = 0 },
		"negative locked": func(c *MarketConfig) { c.LockedColumnsAhead = -1 },
		"min above max":   func(c *MarketConfig) { c.MinBetSize = c.MaxBetSize + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testMarket()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}
