package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "carepoint:session:"

// SessionResolver maps bearer tokens to principals. Sessions are written by
// the external identity provider; this side only reads them.
type SessionResolver struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSessionResolver constructs a SessionResolver.
func NewSessionResolver(client *redis.Client, logger *slog.Logger) *SessionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionResolver{client: client, logger: logger}
}

func (r *SessionResolver) redisKey(token string) string {
	return sessionKeyPrefix + token
}

// Resolve loads the principal bound to token.
func (r *SessionResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	payload, err := r.client.Get(ctx, r.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("session lookup: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, fmt.Errorf("session decode: %w", err)
	}
	if p.UserID == "" || p.TenantID == "" {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// Store binds a principal to token. Used by seeding tools and tests; the
// identity provider owns the session lifecycle in production.
func (r *SessionResolver) Store(ctx context.Context, token string, p Principal, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.redisKey(token), data, ttl).Err()
}

// Middleware authenticates the bearer token and stores the principal in
// the request context. Unverified email addresses are rejected.
func (r *SessionResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := bearerToken(req)
		p, err := r.Resolve(req.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				r.logger.Error("resolve session", slog.Any("error", err))
			}
			writeUnauthenticated(w)
			return
		}
		if !p.EmailVerified {
			writeUnauthenticated(w)
			return
		}
		next.ServeHTTP(w, req.WithContext(ContextWithPrincipal(req.Context(), p)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"Authentication required."}`))
}
