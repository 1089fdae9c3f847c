package api

import (
	"net/http"
	"strconv"

	"gridServer/config"
	"gridServer/game"
	"gridServer/oracle"
)

/* =========================
   RESPONSE TYPES
========================= */

// MultiplierConstants are the protocol constants the contract also uses.
type MultiplierConstants struct {
	BpsDenominator  int64 `json:"bpsDenominator"`
	BaseMultBps     int64 `json:"baseMultBps"`
	DistanceStepBps int64 `json:"distanceStepBps"`
	TimeStepBps     int64 `json:"timeStepBps"`
	MinMultBps      int64 `json:"minMultBps"`
	MaxMultBps      int64 `json:"maxMultBps"`
}

// MarketResponse describes the market and the server clock.
type MarketResponse struct {
	Success         bool                `json:"success"`
	Market          game.MarketConfig   `json:"market"`
	Constants       MultiplierConstants `json:"constants"`
	ContractAddress string              `json:"contractAddress"`
	NowSeconds      int64               `json:"nowSeconds"`
	CurrentBucket   int64               `json:"currentBucket"`
	LatestPrice     *oracle.PriceTick   `json:"latestPrice,omitempty"`
}

// GridResponse wraps a grid snapshot.
type GridResponse struct {
	Success bool               `json:"success"`
	Grid    *game.GridSnapshot `json:"grid"`
}

// MultiplierResponse is the multiplier for one absolute cell.
type MultiplierResponse struct {
	Success       bool   `json:"success"`
	PriceBucket   int    `json:"priceBucket"`
	TargetBucket  int64  `json:"targetBucket"`
	NowSeconds    int64  `json:"nowSeconds"`
	MultiplierBps int64  `json:"multiplierBps"`
	Display       string `json:"display"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleMarket handles GET /api/market
func (s *Server) HandleMarket(w http.ResponseWriter, r *http.Request) {
	market := s.hub.Market()
	now := s.hub.Now()

	current, err := game.CurrentBucket(now, market.TimeBucketSeconds)
	if err != nil {
		sendGameError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, MarketResponse{
		Success: true,
		Market:  market,
		Constants: MultiplierConstants{
			BpsDenominator:  game.BpsDenominator,
			BaseMultBps:     game.BaseMultBps,
			DistanceStepBps: game.DistanceStepBps,
			TimeStepBps:     game.TimeStepBps,
			MinMultBps:      game.MinMultBps,
			MaxMultBps:      game.MaxMultBps,
		},
		ContractAddress: s.contractAddress.Hex(),
		NowSeconds:      now,
		CurrentBucket:   current,
		LatestPrice:     s.hub.LatestPrice(),
	})
}

// HandleGrid handles GET /api/grid
// Query params: columns (optional, default is the broadcast width)
func (s *Server) HandleGrid(w http.ResponseWriter, r *http.Request) {
	columns := s.hub.Columns()
	if raw := r.URL.Query().Get("columns"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > config.MaxVisibleColumns {
			sendError(w, http.StatusBadRequest, "columns must be between 1 and "+strconv.Itoa(config.MaxVisibleColumns))
			return
		}
		columns = n
	}

	snap, err := s.hub.Snapshot(columns)
	if err != nil {
		sendGameError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, GridResponse{Success: true, Grid: snap})
}

// HandleMultiplier handles GET /api/multiplier
// Query params: priceBucket, targetBucket (absolute time bucket)
func (s *Server) HandleMultiplier(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	priceBucket, err := strconv.Atoi(q.Get("priceBucket"))
	if err != nil {
		sendError(w, http.StatusBadRequest, "priceBucket must be an integer")
		return
	}
	targetBucket, err := strconv.ParseInt(q.Get("targetBucket"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "targetBucket must be an integer")
		return
	}

	now := s.hub.Now()
	bps, err := game.ComputeMultiplierBps(s.hub.Market(), priceBucket, targetBucket, now)
	if err != nil {
		sendGameError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, MultiplierResponse{
		Success:       true,
		PriceBucket:   priceBucket,
		TargetBucket:  targetBucket,
		NowSeconds:    now,
		MultiplierBps: bps,
		Display:       game.FormatMultiplier(bps),
	})
}
