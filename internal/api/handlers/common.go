package handlers

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"triarb/internal/bot"
	"triarb/internal/exchange"
	"triarb/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Коды ошибок API
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeRunActive        = "RUN_ACTIVE"
	CodeNoActiveRun      = "NO_ACTIVE_RUN"
	CodeNotFound         = "NOT_FOUND"
	CodeExchangeError    = "EXCHANGE_ERROR"
	CodeServiceDisabled  = "SERVICE_DISABLED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeValidationFailed = "VALIDATION_FAILED"
)

// respondJSON пишет ответ в JSON
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondWithError пишет ErrorResponse со статусом и кодом, выведенными из err
func respondWithError(w http.ResponseWriter, message string, err error) {
	status, code := classifyError(err)
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

// respondBadRequest - ошибка разбора или проверки тела запроса
func respondBadRequest(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Code: CodeInvalidRequest}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, http.StatusBadRequest, resp)
}

// classifyError сопоставляет доменные ошибки HTTP статусам
func classifyError(err error) (int, string) {
	var exErr *exchange.ExchangeError

	switch {
	case err == nil:
		return http.StatusInternalServerError, CodeInternalError
	case errors.Is(err, bot.ErrRunActive):
		return http.StatusConflict, CodeRunActive
	case errors.Is(err, bot.ErrNoActiveRun):
		return http.StatusConflict, CodeNoActiveRun
	case errors.Is(err, bot.ErrOrderNotFound),
		errors.Is(err, repository.ErrRunNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, bot.ErrInvalidPairs),
		errors.Is(err, bot.ErrInvalidAmount),
		errors.Is(err, bot.ErrAssetFlow),
		errors.Is(err, bot.ErrMinNotional),
		errors.Is(err, exchange.ErrSymbolNotFound):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.As(err, &exErr):
		return http.StatusBadGateway, CodeExchangeError
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// decodeJSON разбирает тело запроса, запрещая неизвестные поля
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
