package handler

import (
	"log/slog"
	"net/http"

	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/server/middleware"
	"github.com/tylerheishman/manifold/internal/service"
)

// RedeemHandler serves share redemption.
type RedeemHandler struct {
	redeem *service.RedeemService
	logger *slog.Logger
}

// NewRedeemHandler creates a RedeemHandler.
func NewRedeemHandler(redeem *service.RedeemService, logger *slog.Logger) *RedeemHandler {
	return &RedeemHandler{
		redeem: redeem,
		logger: logger.With(slog.String("handler", "redeem")),
	}
}

// Redeem nets the authenticated user's matched YES/NO pairs on a contract
// back into mana.
// POST /api/market/{contractId}/redeem
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}

	if err := h.redeem.RedeemShares(r.Context(), r.PathValue("contractId"), userID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
