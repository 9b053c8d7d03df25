package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers/response"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserID returns the authenticated subject put in ctx by JWTMiddleware
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a copy of ctx carrying an authenticated subject
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

type MiddlewareProvider struct {
	SecretOption string
	parser       *jwt.Parser
	logger       primary.Logger
}

func NewMiddlewareProvider(cfg *config.JwtConfig, logger primary.Logger) *MiddlewareProvider {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &MiddlewareProvider{
		SecretOption: cfg.Secret,
		parser:       jwt.NewParser(opts...),
		logger:       logger,
	}
}

func (m *MiddlewareProvider) secret() []byte {
	return []byte(m.SecretOption)
}

func unauthorized(w http.ResponseWriter, msg string) {
	response.WriteError(w, response.ErrorMessage{Message: msg, StatusCode: http.StatusUnauthorized})
}

func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header missing")
			return
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := m.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return m.secret(), nil
		})
		if err != nil || !token.Valid {
			unauthorized(w, "Invalid token")
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			unauthorized(w, "Token has no subject")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), subject)))
	})
}

// RecoverMiddleware turns a handler panic into a 500 response
func (m *MiddlewareProvider) RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.logger.Error("Handler panicked", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				response.WriteError(w, response.ErrorMessage{Message: "internal error", StatusCode: http.StatusInternalServerError})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs every request at debug level
func (m *MiddlewareProvider) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.logger.Debug("Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
