package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"gridServer/contract"
	"gridServer/db"
	"gridServer/game"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
)

/* =========================
   REQUEST/RESPONSE TYPES
========================= */

// BuildBetRequest asks for placeBet calldata for a visible cell.
type BuildBetRequest struct {
	PriceBucket int    `json:"priceBucket"`
	ColumnIndex int    `json:"columnIndex"`
	Stake       string `json:"stake"` // Wei as string
}

// BuildBetResponse carries the unsigned transaction for the player's wallet.
type BuildBetResponse struct {
	Success bool                   `json:"success"`
	Call    *contract.PlaceBetCall `json:"call"`
}

// RegisterBetRequest reports a mined placeBet transaction.
type RegisterBetRequest struct {
	BetID       string `json:"betId"`
	Player      string `json:"player"`
	PriceBucket int    `json:"priceBucket"`
	TimeBucket  int64  `json:"timeBucket"`
	Amount      string `json:"amount"` // Wei as string
	TxHash      string `json:"txHash"`
}

// BetResponse wraps a single bet record.
type BetResponse struct {
	Success bool          `json:"success"`
	Bet     *db.BetRecord `json:"bet"`
}

// PlayerBetsResponse lists a player's recent bets.
type PlayerBetsResponse struct {
	Success bool            `json:"success"`
	Bets    []*db.BetRecord `json:"bets"`
}

const (
	defaultBetsLimit = 50
	maxBetsLimit     = 200
)

/* =========================
   BET ENDPOINTS
========================= */

// HandleBuildBet handles POST /api/bet/build
func (s *Server) HandleBuildBet(w http.ResponseWriter, r *http.Request) {
	var req BuildBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stake, err := strconv.ParseUint(req.Stake, 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Stake must be a whole number of wei")
		return
	}

	call, err := contract.BuildPlaceBet(s.hub.Market(), s.contractAddress, s.hub.Now(), req.PriceBucket, req.ColumnIndex, stake)
	if err != nil {
		sendGameError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, BuildBetResponse{Success: true, Call: call})
}

// HandleRegisterBet handles POST /api/bet/register
// The bet is queued for settlement, recorded in history and announced on the
// bets channel.
func (s *Server) HandleRegisterBet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	betID, ok := new(big.Int).SetString(req.BetID, 10)
	if !ok || betID.Sign() < 0 {
		sendError(w, http.StatusBadRequest, "betId must be a non-negative integer")
		return
	}
	if !common.IsHexAddress(req.Player) {
		sendError(w, http.StatusBadRequest, "player must be a hex address")
		return
	}
	player := common.HexToAddress(req.Player)
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		sendError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	hashBytes, err := hexutil.Decode(req.TxHash)
	if err != nil || len(hashBytes) != common.HashLength {
		sendError(w, http.StatusBadRequest, "txHash must be a 32-byte hex string")
		return
	}
	txHash := common.BytesToHash(hashBytes)

	market := s.hub.Market()
	now := s.hub.Now()

	if err := checkStake(market, amount); err != nil {
		sendGameError(w, err)
		return
	}
	quoted, err := game.ComputeMultiplierBps(market, req.PriceBucket, req.TimeBucket, now)
	if err != nil {
		sendGameError(w, err)
		return
	}
	current, err := game.CurrentBucket(now, market.TimeBucketSeconds)
	if err != nil {
		sendGameError(w, err)
		return
	}
	if req.TimeBucket < current {
		sendGameError(w, fmt.Errorf("%w: time bucket %d already elapsed", game.ErrInvalidCoordinate, req.TimeBucket))
		return
	}

	if s.verifier != nil {
		ev, err := s.verifier.BetFromTx(ctx, txHash)
		if err != nil {
			log.Printf("⚠️  Could not verify bet tx %s: %v", txHash.Hex(), err)
			sendError(w, http.StatusBadRequest, "Transaction could not be verified")
			return
		}
		if ev.BetID.Cmp(betID) != 0 ||
			ev.Player != player ||
			ev.PriceBucket != uint64(req.PriceBucket) ||
			ev.TimeBucket != uint64(req.TimeBucket) ||
			ev.Amount.Cmp(amount) != 0 {
			sendError(w, http.StatusBadRequest, "Transaction does not match bet")
			return
		}
	}

	placedAt := time.Now()
	pending := &db.PendingBet{
		BetID:       betID.String(),
		Player:      player.Hex(),
		PriceBucket: req.PriceBucket,
		TimeBucket:  req.TimeBucket,
		Amount:      amount.String(),
		TxHash:      txHash.Hex(),
		PlacedAt:    placedAt,
	}
	record := &db.BetRecord{
		BetID:               pending.BetID,
		Player:              pending.Player,
		PriceBucket:         pending.PriceBucket,
		TimeBucket:          pending.TimeBucket,
		Amount:              pending.Amount,
		QuotedMultiplierBps: quoted,
		TxHash:              pending.TxHash,
		Status:              db.BetStatusPending,
		CreatedAt:           placedAt,
	}

	created, err := s.store.RecordBet(ctx, pending, record)
	if err != nil {
		log.Printf("❌ Failed to register bet %s: %v", pending.BetID, err)
		sendError(w, http.StatusInternalServerError, "Failed to register bet")
		return
	}
	if !created {
		sendError(w, http.StatusConflict, "Bet already registered")
		return
	}

	s.hub.PublishBet("bet_placed", record)
	sendJSON(w, http.StatusOK, BetResponse{Success: true, Bet: record})

	log.Printf("✅ Bet registered - ID: %s, Player: %s, Cell: (%d, %d), Quoted: %s",
		record.BetID, record.Player, record.PriceBucket, record.TimeBucket, game.FormatMultiplier(quoted))
}

// HandleGetBet handles GET /api/bet/{betId}
func (s *Server) HandleGetBet(w http.ResponseWriter, r *http.Request) {
	betID := mux.Vars(r)["betId"]

	record, err := db.GetBet(r.Context(), betID)
	if errors.Is(err, db.ErrHistoryUnavailable) {
		sendError(w, http.StatusServiceUnavailable, "Bet history unavailable")
		return
	}
	if err != nil {
		log.Printf("❌ Failed to get bet %s: %v", betID, err)
		sendError(w, http.StatusInternalServerError, "Failed to retrieve bet")
		return
	}
	if record == nil {
		sendError(w, http.StatusNotFound, "Bet not found")
		return
	}

	sendJSON(w, http.StatusOK, BetResponse{Success: true, Bet: record})
}

// HandleGetPlayerBets handles GET /api/bets/{player}
// Query params: limit (optional)
func (s *Server) HandleGetPlayerBets(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["player"]
	if !common.IsHexAddress(raw) {
		sendError(w, http.StatusBadRequest, "player must be a hex address")
		return
	}

	limit := defaultBetsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxBetsLimit {
			sendError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxBetsLimit))
			return
		}
		limit = n
	}

	records, err := db.GetBetsByPlayer(r.Context(), common.HexToAddress(raw).Hex(), limit)
	if err != nil {
		log.Printf("❌ Failed to get bets for %s: %v", raw, err)
		sendError(w, http.StatusInternalServerError, "Failed to retrieve bets")
		return
	}

	sendJSON(w, http.StatusOK, PlayerBetsResponse{Success: true, Bets: records})
}

func checkStake(market game.MarketConfig, amount *big.Int) error {
	if !amount.IsUint64() || amount.Uint64() < market.MinBetSize || amount.Uint64() > market.MaxBetSize {
		return fmt.Errorf("%w: %s not in [%d, %d]", game.ErrStakeOutOfRange, amount, market.MinBetSize, market.MaxBetSize)
	}
	return nil
}
