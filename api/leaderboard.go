package api

import (
	"log"
	"net/http"

	"gridServer/config"
	"gridServer/db"

	"github.com/ethereum/go-ethereum/common"
)

/* =========================
   RESPONSE TYPES
========================= */

// LeaderboardEntryResponse represents a single leaderboard entry
type LeaderboardEntryResponse struct {
	Rank          int     `json:"rank"`
	WalletAddress string  `json:"walletAddress"`
	Pnl           float64 `json:"pnl"`
}

// LeaderboardResponse represents the leaderboard API response
type LeaderboardResponse struct {
	Success      bool                       `json:"success"`
	Leaderboard  []LeaderboardEntryResponse `json:"leaderboard"`
	UserPosition *LeaderboardEntryResponse  `json:"userPosition,omitempty"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleGetLeaderboard handles GET /api/leaderboard
// Query params: wallet (optional) - get user's position
func HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := db.GetWalletPnLLeaderboard(ctx, config.LeaderboardSize)
	if err != nil {
		log.Printf("❌ Failed to get leaderboard: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	response := LeaderboardResponse{
		Success:     true,
		Leaderboard: make([]LeaderboardEntryResponse, 0, len(records)),
	}

	for _, record := range records {
		response.Leaderboard = append(response.Leaderboard, LeaderboardEntryResponse{
			Rank:          record.Rank,
			WalletAddress: record.WalletAddress,
			Pnl:           record.Amount,
		})
	}

	walletParam := r.URL.Query().Get("wallet")
	if walletParam != "" {
		if !common.IsHexAddress(walletParam) {
			sendError(w, http.StatusBadRequest, "wallet must be a hex address")
			return
		}
		// PnL rows are keyed by checksummed address.
		wallet := common.HexToAddress(walletParam).Hex()

		userInTop := false
		for _, entry := range response.Leaderboard {
			if entry.WalletAddress == wallet {
				userInTop = true
				break
			}
		}

		// Outside the top N, look up the wallet's own rank.
		if !userInTop {
			userRecord, err := db.GetWalletPnLRank(ctx, wallet)
			if err != nil {
				log.Printf("⚠️  Failed to get user rank: %v", err)
			} else if userRecord != nil {
				response.UserPosition = &LeaderboardEntryResponse{
					Rank:          userRecord.Rank,
					WalletAddress: userRecord.WalletAddress,
					Pnl:           userRecord.Amount,
				}
			}
		}
	}

	sendJSON(w, http.StatusOK, response)

	log.Printf("📋 Retrieved leaderboard with %d entries", len(records))
}
