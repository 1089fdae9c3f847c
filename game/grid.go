package game

import "fmt"

// GridCell is one bettable cell with its display multiplier.
type GridCell struct {
	PriceBucket   int    `json:"priceBucket"`
	TimeBucket    int64  `json:"timeBucket"`
	Column        int    `json:"column"`
	MultiplierBps int64  `json:"multiplierBps"`
	Display       string `json:"display"`
}

// GridSnapshot is the grid as seen at a single instant. It is rebuilt on
// every tick and never stored.
type GridSnapshot struct {
	NowSeconds             int64      `json:"nowSeconds"`
	CurrentBucket          int64      `json:"currentBucket"`
	EarliestBettableBucket int64      `json:"earliestBettableBucket"`
	Columns                int        `json:"columns"`
	Cells                  []GridCell `json:"cells"`
}

// BuildGrid computes every cell of the bettable grid for nowSeconds, starting
// at the earliest bettable column. Cells are ordered by price bucket, then
// column.
func BuildGrid(cfg MarketConfig, nowSeconds int64, columns int) (*GridSnapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if columns < 1 {
		return nil, fmt.Errorf("%w: columns must be >= 1, got %d", ErrInvalidCoordinate, columns)
	}

	current, err := CurrentBucket(nowSeconds, cfg.TimeBucketSeconds)
	if err != nil {
		return nil, err
	}
	earliest, err := EarliestBettableBucket(nowSeconds, cfg.TimeBucketSeconds, cfg.LockedColumnsAhead)
	if err != nil {
		return nil, err
	}

	snap := &GridSnapshot{
		NowSeconds:             nowSeconds,
		CurrentBucket:          current,
		EarliestBettableBucket: earliest,
		Columns:                columns,
		Cells:                  make([]GridCell, 0, cfg.NumPriceBuckets*columns),
	}

	for row := 0; row < cfg.NumPriceBuckets; row++ {
		for col := 0; col < columns; col++ {
			bucket, err := ColumnIndexToBucket(col, earliest)
			if err != nil {
				return nil, err
			}
			bps, err := ComputeMultiplierBps(cfg, row, bucket, nowSeconds)
			if err != nil {
				return nil, err
			}
			snap.Cells = append(snap.Cells, GridCell{
				PriceBucket:   row,
				TimeBucket:    bucket,
				Column:        col,
				MultiplierBps: bps,
				Display:       FormatMultiplier(bps),
			})
		}
	}

	return snap, nil
}

// ValidateBet checks a bet the way the contract will before it is signed:
// the row must exist, the target bucket must not be locked and the stake
// must be within the market bounds.
func ValidateBet(cfg MarketConfig, priceBucket int, targetBucket, nowSeconds int64, stake uint64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.ValidPriceBucket(priceBucket) {
		return fmt.Errorf("%w: priceBucket %d outside [0, %d)", ErrInvalidCoordinate, priceBucket, cfg.NumPriceBuckets)
	}
	earliest, err := EarliestBettableBucket(nowSeconds, cfg.TimeBucketSeconds, cfg.LockedColumnsAhead)
	if err != nil {
		return err
	}
	if targetBucket < earliest {
		return fmt.Errorf("%w: time bucket %d is locked (earliest bettable %d)", ErrInvalidCoordinate, targetBucket, earliest)
	}
	if stake < cfg.MinBetSize || stake > cfg.MaxBetSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrStakeOutOfRange, stake, cfg.MinBetSize, cfg.MaxBetSize)
	}
	return nil
}
