package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoClaims     = errors.New("no claims in request context")
)

// TokenTTL is how long issued tokens stay valid
const TokenTTL = 24 * time.Hour

const issuer = "fiscal-extractor"

var jwtSecret []byte

// Claims carried by API tokens
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"eml,omitempty"`
	TaxID  string `json:"nif,omitempty"` // the user's own NIF/CIF
	jwt.RegisteredClaims
}

type contextKey struct{}

// Init sets the HMAC secret. An empty secret falls back to JWT_SECRET.
func Init(secret string) error {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return errors.New("JWT secret not configured")
	}
	jwtSecret = []byte(secret)
	return nil
}

// GenerateToken issues an HS256 token for the user
func GenerateToken(userID, email, taxID string) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("auth not initialized")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		TaxID:  taxID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a signed token and returns its claims
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return claims, nil
}

// publicPaths skip authentication
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// JWTMiddleware requires a valid bearer token on every route except the
// public ones, and stores the claims in the request context
func JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			unauthorized(w, ErrMissingToken)
			return
		}

		claims, err := ParseToken(strings.TrimSpace(tokenString))
		if err != nil {
			unauthorized(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// GetClaimsFromContext returns the claims stored by JWTMiddleware
func GetClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
