package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handlers serves the REST surface of the match engine and XP module.
type Handlers struct {
	matches  *app.MatchService
	xp       *app.XPService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandlers(matches *app.MatchService, xp *app.XPService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		matches:  matches,
		xp:       xp,
		logger:   logger,
		validate: newValidator(),
	}
}

type createMatchRequest struct {
	PlayerOneID string `json:"playerOneId" validate:"required"`
}

type joinMatchRequest struct {
	RoomCode    string `json:"roomCode" validate:"required,len=6"`
	PlayerTwoID string `json:"playerTwoId" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=64"`
}

type submitAnswerRequest struct {
	MatchQuestionID string `json:"matchQuestionId" validate:"required"`
	Player          int    `json:"player" validate:"oneof=1 2"`
	Answer          string `json:"answer" validate:"required"`
}

type finalizeRequest struct {
	RoomCode string `json:"roomCode" validate:"required,len=6"`
}

type addXPRequest struct {
	Amount int64 `json:"amount" validate:"gt=0,max=1000000"`
}

func (h *Handlers) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	match, err := h.matches.CreateMatch(r.Context(), req.PlayerOneID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, match, "match created")
}

func (h *Handlers) JoinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinMatchRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	match, err := h.matches.JoinMatch(r.Context(), req.RoomCode, req.PlayerTwoID, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, match, "joined match")
}

func (h *Handlers) GetMatch(w http.ResponseWriter, r *http.Request) {
	board, err := h.matches.Scoreboard(r.Context(), chi.URLParam(r, "roomCode"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board, "")
}

func (h *Handlers) GetQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.matches.Questions(r.Context(), chi.URLParam(r, "roomCode"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, questions, "")
}

func (h *Handlers) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.matches.SubmitAnswer(r.Context(), req.MatchQuestionID, domain.PlayerSlot(req.Player), req.Answer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res, "answer recorded")
}

func (h *Handlers) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.matches.Finalize(r.Context(), req.RoomCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res, "match finalized")
}

func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.logger, domain.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	board, err := h.xp.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board, "")
}

func (h *Handlers) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.xp.Stats(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats, "")
}

func (h *Handlers) AddXP(w http.ResponseWriter, r *http.Request) {
	var req addXPRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	stats, err := h.xp.AddXP(r.Context(), chi.URLParam(r, "userId"), req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats, "xp awarded")
}
