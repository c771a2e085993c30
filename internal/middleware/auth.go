package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserIDKey       contextKey = "user_id"
	tokenExpiredKey contextKey = "token_expired"
)

// AccessTokenTTL is how long an access token is accepted.
const AccessTokenTTL = 15 * time.Minute

type JWTAuth struct {
	Secret []byte
	now    func() time.Time
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret), now: time.Now}
}

// GenerateAccessToken creates a JWT with 15 minute expiry. Users are
// identified by email.
func (j *JWTAuth) GenerateAccessToken(email string, teacher bool) (string, error) {
	now := j.now()
	claims := jwt.MapClaims{
		"user_id": email,
		"teacher": teacher,
		"exp":     now.Add(AccessTokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

func (j *JWTAuth) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return j.Secret, nil
}

// ParseToken verifies signature and expiry and returns the user id.
func (j *JWTAuth) ParseToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, j.keyFunc, jwt.WithTimeFunc(j.now))
	if err != nil {
		return "", err
	}
	return userIDFromClaims(token)
}

// parseIgnoringExpiry verifies the signature only. expired reports whether
// the exp claim has passed.
func (j *JWTAuth) parseIgnoringExpiry(tokenStr string) (userID string, expired bool, err error) {
	token, err := jwt.Parse(tokenStr, j.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", false, err
	}
	userID, err = userIDFromClaims(token)
	if err != nil {
		return "", false, err
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", false, jwt.ErrTokenInvalidClaims
	}
	return userID, !j.now().Before(exp.Time), nil
}

func userIDFromClaims(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return userID, nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Middleware validates JWT and attaches user_id to context
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}
		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		userID, err := j.ParseToken(tokenStr)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AllowExpired accepts a correctly signed token even after it expired and
// records that in the context. Handlers behind it must renew the session
// before trusting the caller for anything but finishing a running timer.
func (j *JWTAuth) AllowExpired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		userID, expired, err := j.parseIgnoringExpiry(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, tokenExpiredKey, expired)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts user_id from request context
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// TokenExpired reports whether the request came in with an expired token
// through AllowExpired.
func TokenExpired(ctx context.Context) bool {
	expired, _ := ctx.Value(tokenExpiredKey).(bool)
	return expired
}

// WithUserID returns ctx carrying userID the way Middleware sets it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get(RequestIDHeader)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
