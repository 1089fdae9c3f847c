package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"gridServer/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// PostgresPool is the global PostgreSQL connection pool
	PostgresPool *pgxpool.Pool

	// ErrHistoryUnavailable is returned by bet lookups when PostgreSQL is not
	// connected.
	ErrHistoryUnavailable = errors.New("bet history unavailable")
)

const (
	BetStatusPending = "pending"
	BetStatusSettled = "settled"
	BetStatusFailed  = "failed"
)

// BetRecord is one grid bet in the history table.
type BetRecord struct {
	BetID               string     `json:"betId"`
	Player              string     `json:"player"`
	PriceBucket         int        `json:"priceBucket"`
	TimeBucket          int64      `json:"timeBucket"`
	Amount              string     `json:"amount"` // Wei as string
	QuotedMultiplierBps int64      `json:"quotedMultiplierBps"`
	TxHash              string     `json:"txHash"`
	Status              string     `json:"status"`
	Won                 *bool      `json:"won,omitempty"`
	Payout              *string    `json:"payout,omitempty"` // Wei as string
	SettleTxHash        *string    `json:"settleTxHash,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	SettledAt           *time.Time `json:"settledAt,omitempty"`
}

// WalletPnLRecord represents a wallet's cumulative PnL
type WalletPnLRecord struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
	Rank          int     `json:"rank,omitempty"`
}

// InitPostgres initializes the PostgreSQL connection pool
func InitPostgres() error {
	log.Println("🔌 Connecting to PostgreSQL...")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	PostgresPool = pool
	log.Println("✅ PostgreSQL connected successfully")

	if err := InitSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ClosePostgres closes the PostgreSQL connection pool
func ClosePostgres() {
	if PostgresPool != nil {
		log.Println("🔌 Closing PostgreSQL connection...")
		PostgresPool.Close()
	}
}

// InitSchema creates the database tables if they don't exist
func InitSchema(ctx context.Context) error {
	log.Println("📋 Initializing database schema...")

	gridBetsSchema := `
	CREATE TABLE IF NOT EXISTS grid_bets (
		bet_id TEXT PRIMARY KEY,
		player TEXT NOT NULL,
		price_bucket INTEGER NOT NULL,
		time_bucket BIGINT NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		quoted_multiplier_bps BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		won BOOLEAN,
		payout NUMERIC(78, 0),
		settle_tx_hash TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		settled_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_grid_bets_player ON grid_bets(player);
	CREATE INDEX IF NOT EXISTS idx_grid_bets_time_bucket ON grid_bets(time_bucket);
	CREATE INDEX IF NOT EXISTS idx_grid_bets_status ON grid_bets(status);
	`

	if _, err := PostgresPool.Exec(ctx, gridBetsSchema); err != nil {
		return fmt.Errorf("failed to create grid_bets table: %w", err)
	}

	walletPnLSchema := `
	CREATE TABLE IF NOT EXISTS wallet_pnl (
		wallet_address TEXT PRIMARY KEY,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_pnl_amount ON wallet_pnl(amount DESC);
	`

	if _, err := PostgresPool.Exec(ctx, walletPnLSchema); err != nil {
		return fmt.Errorf("failed to create wallet_pnl table: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

/* =========================
   GRID BETS
========================= */

// StoreBetRecord inserts a placed bet and reports whether a new row was
// written. Re-registering the same bet returns false. Without PostgreSQL the
// insert is skipped and reported as new.
func StoreBetRecord(ctx context.Context, record *BetRecord) (bool, error) {
	if PostgresPool == nil {
		log.Println("⚠️  PostgreSQL not initialized, skipping bet storage")
		return true, nil
	}

	query := `
		INSERT INTO grid_bets
		(bet_id, player, price_bucket, time_bucket, amount, quoted_multiplier_bps, tx_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (bet_id) DO NOTHING
	`

	tag, err := PostgresPool.Exec(ctx, query,
		record.BetID,
		record.Player,
		record.PriceBucket,
		record.TimeBucket,
		record.Amount,
		record.QuotedMultiplierBps,
		record.TxHash,
		BetStatusPending,
		record.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	log.Printf("✅ Stored bet %s for %s at (%d, %d)", record.BetID, record.Player, record.PriceBucket, record.TimeBucket)
	return true, nil
}

// DeleteBetRecord removes a bet that could not be queued for settlement.
func DeleteBetRecord(ctx context.Context, betID string) error {
	if PostgresPool == nil {
		return nil
	}

	if _, err := PostgresPool.Exec(ctx, `DELETE FROM grid_bets WHERE bet_id = $1 AND status = 'pending'`, betID); err != nil {
		return fmt.Errorf("failed to delete bet: %w", err)
	}
	return nil
}

// MarkBetSubmitted records the settle transaction hash of a bet.
func MarkBetSubmitted(ctx context.Context, betID, settleTxHash string) error {
	if PostgresPool == nil {
		return nil
	}

	_, err := PostgresPool.Exec(ctx,
		`UPDATE grid_bets SET settle_tx_hash = $2 WHERE bet_id = $1`,
		betID, settleTxHash)
	if err != nil {
		return fmt.Errorf("failed to record settle tx: %w", err)
	}
	return nil
}

// MarkBetSettled stores the contract's settlement outcome and credits any
// payout to the player's PnL in one transaction. It reports false when the
// bet was already settled, in which case nothing is credited.
func MarkBetSettled(ctx context.Context, bet *PendingBet, won bool, payout *big.Int) (bool, error) {
	if PostgresPool == nil {
		return true, nil
	}
	if payout == nil {
		payout = new(big.Int)
	}

	tx, err := PostgresPool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE grid_bets
		SET status = $2, won = $3, payout = $4::numeric, settled_at = NOW()
		WHERE bet_id = $1 AND status = 'pending'
	`

	tag, err := tx.Exec(ctx, query, bet.BetID, BetStatusSettled, won, payout.String())
	if err != nil {
		return false, fmt.Errorf("failed to mark bet settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if payout.Sign() > 0 {
		credit := config.WeiToMNT(payout)
		if _, err := tx.Exec(ctx, walletPnLUpsert, bet.Player, credit); err != nil {
			return false, fmt.Errorf("failed to credit payout: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}

	log.Printf("🏁 Bet %s settled (won=%v, payout=%s wei)", bet.BetID, won, payout)
	return true, nil
}

// MarkBetFailed flags a bet whose settlement could not be submitted.
func MarkBetFailed(ctx context.Context, betID string) error {
	if PostgresPool == nil {
		return nil
	}

	_, err := PostgresPool.Exec(ctx,
		`UPDATE grid_bets SET status = $2 WHERE bet_id = $1 AND status = 'pending'`,
		betID, BetStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark bet failed: %w", err)
	}
	return nil
}

// GetBetsByPlayer returns a player's most recent bets.
func GetBetsByPlayer(ctx context.Context, player string, limit int) ([]*BetRecord, error) {
	if PostgresPool == nil {
		return []*BetRecord{}, nil
	}

	query := `
		SELECT bet_id, player, price_bucket, time_bucket, amount::text, quoted_multiplier_bps,
		       tx_hash, status, won, payout::text, settle_tx_hash, created_at, settled_at
		FROM grid_bets
		WHERE player = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := PostgresPool.Query(ctx, query, player, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	records := make([]*BetRecord, 0)
	for rows.Next() {
		var r BetRecord
		if err := rows.Scan(
			&r.BetID,
			&r.Player,
			&r.PriceBucket,
			&r.TimeBucket,
			&r.Amount,
			&r.QuotedMultiplierBps,
			&r.TxHash,
			&r.Status,
			&r.Won,
			&r.Payout,
			&r.SettleTxHash,
			&r.CreatedAt,
			&r.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// GetBet returns one bet, or nil when unknown.
func GetBet(ctx context.Context, betID string) (*BetRecord, error) {
	if PostgresPool == nil {
		return nil, ErrHistoryUnavailable
	}

	query := `
		SELECT bet_id, player, price_bucket, time_bucket, amount::text, quoted_multiplier_bps,
		       tx_hash, status, won, payout::text, settle_tx_hash, created_at, settled_at
		FROM grid_bets
		WHERE bet_id = $1
	`

	var r BetRecord
	err := PostgresPool.QueryRow(ctx, query, betID).Scan(
		&r.BetID,
		&r.Player,
		&r.PriceBucket,
		&r.TimeBucket,
		&r.Amount,
		&r.QuotedMultiplierBps,
		&r.TxHash,
		&r.Status,
		&r.Won,
		&r.Payout,
		&r.SettleTxHash,
		&r.CreatedAt,
		&r.SettledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return &r, nil
}

/* =========================
   HEALTH CHECK
========================= */

// HealthCheckPostgres performs a PostgreSQL health check
func HealthCheckPostgres(ctx context.Context) error {
	if PostgresPool == nil {
		return fmt.Errorf("PostgreSQL connection pool not initialized")
	}
	return PostgresPool.Ping(ctx)
}

/* =========================
   WALLET PNL
========================= */

// SubtractWalletPnL debits a stake from the wallet's PnL (upsert)
func SubtractWalletPnL(ctx context.Context, walletAddress string, amount float64) error {
	return addWalletPnL(ctx, walletAddress, -amount)
}

// AddWalletPnL credits a payout to the wallet's PnL (upsert)
func AddWalletPnL(ctx context.Context, walletAddress string, amount float64) error {
	return addWalletPnL(ctx, walletAddress, amount)
}

const walletPnLUpsert = `
	INSERT INTO wallet_pnl (wallet_address, amount)
	VALUES ($1, $2)
	ON CONFLICT (wallet_address) DO UPDATE
	SET amount = wallet_pnl.amount + $2
`

func addWalletPnL(ctx context.Context, walletAddress string, delta float64) error {
	if PostgresPool == nil {
		log.Println("⚠️  PostgreSQL not initialized, skipping PnL update")
		return nil
	}

	if _, err := PostgresPool.Exec(ctx, walletPnLUpsert, walletAddress, delta); err != nil {
		return fmt.Errorf("failed to update wallet PnL: %w", err)
	}

	log.Printf("📊 Wallet %s PnL %+.4f", walletAddress, delta)
	return nil
}

// GetWalletPnLLeaderboard returns top N wallets sorted by PnL descending
func GetWalletPnLLeaderboard(ctx context.Context, limit int) ([]*WalletPnLRecord, error) {
	if PostgresPool == nil {
		return []*WalletPnLRecord{}, nil
	}

	query := `
		SELECT wallet_address, amount,
		       ROW_NUMBER() OVER (ORDER BY amount DESC) as rank
		FROM wallet_pnl
		ORDER BY amount DESC
		LIMIT $1
	`

	rows, err := PostgresPool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var records []*WalletPnLRecord
	for rows.Next() {
		var record WalletPnLRecord
		if err := rows.Scan(&record.WalletAddress, &record.Amount, &record.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetWalletPnLRank returns a specific wallet's rank and PnL
func GetWalletPnLRank(ctx context.Context, walletAddress string) (*WalletPnLRecord, error) {
	if PostgresPool == nil {
		return nil, nil
	}

	query := `
		SELECT wallet_address, amount, rank FROM (
			SELECT wallet_address, amount,
			       ROW_NUMBER() OVER (ORDER BY amount DESC) as rank
			FROM wallet_pnl
		) ranked
		WHERE wallet_address = $1
	`

	var record WalletPnLRecord
	err := PostgresPool.QueryRow(ctx, query, walletAddress).Scan(
		&record.WalletAddress,
		&record.Amount,
		&record.Rank,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet rank: %w", err)
	}

	return &record, nil
}
