package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gridServer/game"

	"github.com/BurntSushi/toml"
)

// marketFile mirrors the [market] table of the market TOML file.
type marketFile struct {
	Market game.MarketConfig `toml:"market"`
}

// DefaultMarket returns the market used when no file or env override is set.
func DefaultMarket() game.MarketConfig {
	return game.MarketConfig{
		NumPriceBuckets:    DefaultNumPriceBuckets,
		MidPriceBucket:     DefaultMidPriceBucket,
		TimeBucketSeconds:  DefaultTimeBucketSeconds,
		LockedColumnsAhead: DefaultLockedColumnsAhead,
		MinBetSize:         DefaultMinBetSize,
		MaxBetSize:         DefaultMaxBetSize,
	}
}

// LoadMarket builds the market configuration from defaults, the TOML file at
// path (skipped when missing) and GRID_* environment overrides, then
// validates it. Any error here must stop the server: a malformed market
// cannot be displayed or bet on.
func LoadMarket(path string) (game.MarketConfig, error) {
	file := marketFile{Market: DefaultMarket()}

	if path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return game.MarketConfig{}, fmt.Errorf("failed to decode market file %s: %w", path, err)
		}
	}

	cfg := file.Market
	if err := applyMarketEnv(&cfg); err != nil {
		return game.MarketConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return game.MarketConfig{}, err
	}
	return cfg, nil
}

func applyMarketEnv(cfg *game.MarketConfig) error {
	if err := setInt(&cfg.NumPriceBuckets, "GRID_NUM_PRICE_BUCKETS"); err != nil {
		return err
	}
	if err := setInt(&cfg.MidPriceBucket, "GRID_MID_PRICE_BUCKET"); err != nil {
		return err
	}
	if err := setInt64(&cfg.TimeBucketSeconds, "GRID_TIME_BUCKET_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&cfg.LockedColumnsAhead, "GRID_LOCKED_COLUMNS_AHEAD"); err != nil {
		return err
	}
	if err := setUint64(&cfg.MinBetSize, "GRID_MIN_BET_SIZE"); err != nil {
		return err
	}
	return setUint64(&cfg.MaxBetSize, "GRID_MAX_BET_SIZE")
}

// Unparseable overrides are configuration errors, never silently ignored.
func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", game.ErrConfiguration, key, v)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", game.ErrConfiguration, key, v)
	}
	*dst = n
	return nil
}

func setUint64(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an unsigned integer", game.ErrConfiguration, key, v)
	}
	*dst = n
	return nil
}

// Env returns the environment variable key, or fallback when unset.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
