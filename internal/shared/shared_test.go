package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdempotencyStoreRejectsReplays(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := NewIdempotencyStore(client, time.Minute)

	require.NoError(t, store.CheckAndInsert(ctx, "key-1", "payments"))
	err := store.CheckAndInsert(ctx, "key-1", "payments")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, store.CheckAndInsert(ctx, "key-1", "pos"))

	require.NoError(t, store.Delete(ctx, "key-1", "payments"))
	require.NoError(t, store.CheckAndInsert(ctx, "key-1", "payments"))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, "key-1", "pos"))
}

func TestSessionResolverMiddleware(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	resolver := NewSessionResolver(client, nil)
	require.NoError(t, resolver.Store(ctx, "tok-verified", Principal{UserID: "u1", TenantID: "h1", Role: "admin", EmailVerified: true}, time.Hour))
	require.NoError(t, resolver.Store(ctx, "tok-unverified", Principal{UserID: "u2", TenantID: "h1", Role: "doctor"}, time.Hour))

	var seen Principal
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, call("tok-verified"))
	require.Equal(t, "h1", seen.TenantID)
	require.Equal(t, Role("admin"), seen.Role)
	require.Equal(t, http.StatusUnauthorized, call("tok-unverified"))
	require.Equal(t, http.StatusUnauthorized, call("missing"))
	require.Equal(t, http.StatusUnauthorized, call(""))
}

type memoryAuditWriter struct {
	entries []AuditLog
	err     error
}

func (m *memoryAuditWriter) WriteAudit(_ context.Context, log AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, log)
	return nil
}

func TestAuditLoggerFillsActorFromContext(t *testing.T) {
	writer := &memoryAuditWriter{}
	logger := NewAuditLogger(writer, nil)
	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: "u9", TenantID: "h1"})

	require.NoError(t, logger.Record(ctx, AuditLog{TenantID: "h1", Action: "payment.add", Entity: "invoices", EntityID: "inv-1"}))
	require.Len(t, writer.entries, 1)
	require.Equal(t, "u9", writer.entries[0].ActorID)
	require.False(t, writer.entries[0].At.IsZero())

	require.Error(t, logger.Record(ctx, AuditLog{Action: "x"}))

	writer.err = errors.New("store down")
	require.Error(t, logger.Record(ctx, AuditLog{TenantID: "h1", Action: "a", Entity: "e", EntityID: "1"}))

	var nilLogger *AuditLogger
	require.NoError(t, nilLogger.Record(ctx, AuditLog{}))
}

func TestUserSafeMessage(t *testing.T) {
	require.Equal(t, "An unexpected error occurred.", UserSafeMessage(errors.New("pq: secret")))
	require.Contains(t, UserSafeMessage(NotFoundf("invoice %s", "x")), "invoice x")
	require.Equal(t, "Authentication required.", UserSafeMessage(ErrUnauthenticated))
}
