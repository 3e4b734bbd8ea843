package middleware

import (
	"net/http"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"triarb/pkg/crypto"
	"triarb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxVerifiedTokens ограничивает кеш проверенных отпечатков
const maxVerifiedTokens = 16

// TokenAuth проверяет Bearer токен оператора по bcrypt хешу.
//
// bcrypt намеренно медленный, поэтому успешно проверенные токены
// запоминаются по SHA-256 отпечатку. Неудачные проверки не кешируются.
type TokenAuth struct {
	hash   string
	logger *utils.Logger

	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewTokenAuth создает проверку токена; пустой hash отключает авторизацию
func NewTokenAuth(hash string, logger *utils.Logger) *TokenAuth {
	if logger == nil {
		logger = utils.L()
	}
	return &TokenAuth{
		hash:     hash,
		logger:   logger.WithComponent("auth"),
		verified: make(map[string]struct{}),
	}
}

// Enabled возвращает true, если хеш токена настроен
func (a *TokenAuth) Enabled() bool {
	return a.hash != ""
}

// Middleware - middleware для защищенных маршрутов.
//
// Токен берется из заголовка Authorization: Bearer <token>. Браузерный
// WebSocket не умеет передавать заголовки, поэтому для него допускается
// параметр запроса ?token=.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		if !a.check(token) {
			a.logger.Warn("Rejected API token",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *TokenAuth) check(token string) bool {
	fp := crypto.Fingerprint(token)

	a.mu.RLock()
	_, ok := a.verified[fp]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if err := crypto.VerifyToken(token, a.hash); err != nil {
		return false
	}

	a.mu.Lock()
	if len(a.verified) >= maxVerifiedTokens {
		a.verified = make(map[string]struct{})
	}
	a.verified[fp] = struct{}{}
	a.mu.Unlock()
	return true
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="triarb"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  "UNAUTHORIZED",
	})
}
