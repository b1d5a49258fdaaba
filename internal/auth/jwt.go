package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWT-related errors
var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidRole   = errors.New("role claim not allowed")
)

// allowedRoles are the roles the function gateway accepts.
var allowedRoles = map[string]bool{
	"anon":          true,
	"authenticated": true,
	"service_role":  true,
}

// GatewayClaims are the claims of an anon or service key JWT.
type GatewayClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// BearerToken returns the token of an "Authorization: Bearer" header value.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

// VerifyGatewayToken validates an HS256 gateway JWT and returns its role.
func VerifyGatewayToken(tokenString string, secret []byte) (string, error) {
	claims := &GatewayClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !allowedRoles[claims.Role] {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	return claims.Role, nil
}

// GatewayJWT rejects requests whose Authorization header is not a valid
// gateway JWT signed with secret. An empty secret disables the check.
// Preflight requests always pass.
func GatewayJWT(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		key := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, err := BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				_, err = VerifyGatewayToken(token, key)
			}
			if err != nil {
				logger.WarnContext(r.Context(), "gateway token rejected", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid JWT"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
