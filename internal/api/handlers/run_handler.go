package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"triarb/internal/models"
)

// maxRunsLimit - верхняя граница выборки истории
const maxRunsLimit = 200

// RunHandler отдает журнал завершенных запусков.
// Если БД не настроена, history == nil и endpoints отвечают 503.
type RunHandler struct {
	history RunHistory
}

// NewRunHandler создает новый RunHandler
func NewRunHandler(history RunHistory) *RunHandler {
	return &RunHandler{history: history}
}

// GetRuns возвращает последние запуски, новые первыми.
//
// GET /api/v1/runs?limit=20
func (h *RunHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "run history is disabled",
			Code:  CodeServiceDisabled,
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondBadRequest(w, "limit must be a positive integer", err)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.history.GetRecent(r.Context(), limit)
	if err != nil {
		respondWithError(w, "failed to get runs", err)
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun возвращает запуск с ногами.
//
// GET /api/v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "run history is disabled",
			Code:  CodeServiceDisabled,
		})
		return
	}

	run, err := h.history.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, "failed to get run", err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
