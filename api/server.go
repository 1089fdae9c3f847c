package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"gridServer/config"
	"gridServer/contract"
	"gridServer/db"
	"gridServer/game"
	"gridServer/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// BetRecorder persists registered bets. RecordBet reports false when the bet
// was already registered.
type BetRecorder interface {
	RecordBet(ctx context.Context, bet *db.PendingBet, record *db.BetRecord) (bool, error)
}

// BetVerifier reads a placeBet transaction back from the chain.
type BetVerifier interface {
	BetFromTx(ctx context.Context, txHash common.Hash) (*contract.BetPlacedEvent, error)
}

// Server serves the grid HTTP API and the websocket endpoint.
type Server struct {
	hub             *ws.Hub
	store           BetRecorder
	verifier        BetVerifier // nil when no RPC is configured
	contractAddress common.Address
	limiter         *rate.Limiter
	server          *http.Server
}

// NewServer wires handlers to hub. verifier may be nil, in which case bet
// registrations are trusted as submitted.
func NewServer(hub *ws.Hub, store BetRecorder, verifier BetVerifier, contractAddress common.Address) *Server {
	return &Server{
		hub:             hub,
		store:           store,
		verifier:        verifier,
		contractAddress: contractAddress,
		limiter:         rate.NewLimiter(rate.Limit(config.MaxRequestsPerSecond), config.MaxRequestsPerSecond),
	}
}

// Handler builds the router with CORS and rate limiting applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/market", s.HandleMarket).Methods(http.MethodGet)
	api.HandleFunc("/grid", s.HandleGrid).Methods(http.MethodGet)
	api.HandleFunc("/multiplier", s.HandleMultiplier).Methods(http.MethodGet)
	api.HandleFunc("/bet/build", s.HandleBuildBet).Methods(http.MethodPost)
	api.HandleFunc("/bet/register", s.HandleRegisterBet).Methods(http.MethodPost)
	api.HandleFunc("/bet/{betId}", s.HandleGetBet).Methods(http.MethodGet)
	api.HandleFunc("/bets/{player}", s.HandleGetPlayerBets).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", HandleGetLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/health", s.HandleHealthCheck).Methods(http.MethodGet)

	router.HandleFunc("/ws", s.hub.HandleWS)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{config.AllowOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	})
	return c.Handler(router)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()
	log.Printf("🚀 Server listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("🛑 Shutting down HTTP server")
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			sendError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

/* =========================
   RESPONSE HELPERS
========================= */

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   message,
	})
}

// sendGameError maps engine errors to HTTP status codes. A broken market is
// the server's fault; a bad cell or stake is the caller's.
func sendGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrConfiguration):
		log.Printf("❌ Market misconfigured: %v", err)
		sendError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, game.ErrInvalidCoordinate), errors.Is(err, game.ErrStakeOutOfRange):
		sendError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("❌ Request failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Internal error")
	}
}
