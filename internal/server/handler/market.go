package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/server/middleware"
	"github.com/tylerheishman/manifold/internal/service"
)

// MarketHandler serves contract reads and metadata updates.
type MarketHandler struct {
	markets *service.MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

// GetMarket returns a contract.
// GET /api/market/{contractId}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	contract, err := h.markets.GetMarket(r.Context(), r.PathValue("contractId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// ListAnswers returns a contract's answers in index order.
// GET /api/market/{contractId}/answers
func (h *MarketHandler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := h.markets.ListAnswers(r.Context(), r.PathValue("contractId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if answers == nil {
		answers = []domain.Answer{}
	}
	writeJSON(w, http.StatusOK, answers)
}

// ListBets returns the authenticated user's bets on a contract.
// GET /api/market/{contractId}/bets
func (h *MarketHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}
	bets, err := h.markets.ListUserBets(r.Context(), r.PathValue("contractId"), userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

// AddOrRemoveTopic tags or untags a contract with a topic group.
// POST /api/market/{contractId}/group
func (h *MarketHandler) AddOrRemoveTopic(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}

	var body struct {
		GroupID string `json:"groupId"`
		Remove  bool   `json:"remove"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if body.GroupID == "" {
		writeError(w, h.logger, r, domain.NewAPIError(400, "groupId is required"))
		return
	}

	err := h.markets.AddOrRemoveTopic(r.Context(), r.PathValue("contractId"), body.GroupID, userID, body.Remove)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UpdateMarket applies a metadata update to a contract.
// POST /api/market/{contractId}/update
func (h *MarketHandler) UpdateMarket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}

	var body struct {
		Question       *string                `json:"question"`
		CloseTime      *int64                 `json:"closeTime"`
		AddAnswersMode *domain.AddAnswersMode `json:"addAnswersMode"`
		Visibility     *domain.Visibility     `json:"visibility"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	update := service.MarketUpdate{
		Question:       body.Question,
		AddAnswersMode: body.AddAnswersMode,
		Visibility:     body.Visibility,
	}
	if body.CloseTime != nil {
		t := time.UnixMilli(*body.CloseTime)
		update.CloseTime = &t
	}

	if err := h.markets.UpdateMarket(r.Context(), r.PathValue("contractId"), userID, update); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
