package game

import "fmt"

// MarketConfig describes one grid market. It is supplied once and never
// mutated.
type MarketConfig struct {
	NumPriceBuckets    int    `json:"numPriceBuckets" toml:"num_price_buckets"`
	MidPriceBucket     int    `json:"midPriceBucket" toml:"mid_price_bucket"`
	TimeBucketSeconds  int64  `json:"timeBucketSeconds" toml:"time_bucket_seconds"`
	LockedColumnsAhead int    `json:"lockedColumnsAhead" toml:"locked_columns_ahead"`
	MinBetSize         uint64 `json:"minBetSize" toml:"min_bet_size"`
	MaxBetSize         uint64 `json:"maxBetSize" toml:"max_bet_size"`
}

// BucketCoordinate addresses one grid cell.
type BucketCoordinate struct {
	PriceBucket int   `json:"priceBucket"`
	TimeBucket  int64 `json:"timeBucket"`
}

// Validate reports the first broken invariant of the market, wrapped in
// ErrConfiguration.
func (c MarketConfig) Validate() error {
	if c.NumPriceBuckets < 1 {
		return fmt.Errorf("%w: numPriceBuckets must be >= 1, got %d", ErrConfiguration, c.NumPriceBuckets)
	}
	if c.MidPriceBucket < 0 || c.MidPriceBucket >= c.NumPriceBuckets {
		return fmt.Errorf("%w: midPriceBucket %d outside [0, %d)", ErrConfiguration, c.MidPriceBucket, c.NumPriceBuckets)
	}
	if c.TimeBucketSeconds <= 0 {
		return fmt.Errorf("%w: timeBucketSeconds must be > 0, got %d", ErrConfiguration, c.TimeBucketSeconds)
	}
	if c.LockedColumnsAhead < 0 {
		return fmt.Errorf("%w: lockedColumnsAhead must be >= 0, got %d", ErrConfiguration, c.LockedColumnsAhead)
	}
	if c.MinBetSize > c.MaxBetSize {
		return fmt.Errorf("%w: minBetSize %d exceeds maxBetSize %d", ErrConfiguration, c.MinBetSize, c.MaxBetSize)
	}
	return nil
}

// ValidPriceBucket reports whether row addresses a row of the grid.
func (c MarketConfig) ValidPriceBucket(row int) bool {
	return row >= 0 && row < c.NumPriceBuckets
}
