package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/server/middleware"
	"github.com/tylerheishman/manifold/internal/service"
)

// maxAnswerLength bounds the answer text accepted over the API.
const maxAnswerLength = 240

// AnswerHandler serves answer creation.
type AnswerHandler struct {
	answers *service.AnswerService
	logger  *slog.Logger
}

// NewAnswerHandler creates an AnswerHandler.
func NewAnswerHandler(answers *service.AnswerService, logger *slog.Logger) *AnswerHandler {
	return &AnswerHandler{
		answers: answers,
		logger:  logger.With(slog.String("handler", "answer")),
	}
}

// CreateAnswer adds an answer to a multi-answer contract.
// POST /api/market/{contractId}/answer
func (h *AnswerHandler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		writeError(w, h.logger, r, domain.NewAPIError(400, "text is required"))
		return
	}
	if len(text) > maxAnswerLength {
		writeError(w, h.logger, r, domain.Errorf(400, "text must be %d characters or fewer", maxAnswerLength))
		return
	}

	newAnswerID, err := h.answers.CreateAnswer(
		r.Context(), r.PathValue("contractId"), text, userID, service.CreateAnswerOptions{},
	)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"newAnswerId": newAnswerID})
}
