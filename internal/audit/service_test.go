package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func TestTimelinePagingNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	logger := shared.NewAuditLogger(NewStore(store), nil)
	base := time.Date(2024, 3, 8, 8, 0, 0, 0, time.UTC)
	for i, action := range []string{"payment.add", "payment.edit", "payment.delete"} {
		require.NoError(t, logger.Record(ctx, shared.AuditLog{
			TenantID: "h1", ActorID: "u1", Action: action, Entity: "invoices", EntityID: "inv-1",
			At: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, logger.Record(ctx, shared.AuditLog{TenantID: "h2", ActorID: "u2", Action: "x", Entity: "y", EntityID: "z", At: base}))

	svc := NewService(store)
	result, err := svc.Timeline(ctx, TimelineFilters{TenantID: "h1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, "payment.delete", result.Rows[0].Action)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)

	result, err = svc.Timeline(ctx, TimelineFilters{TenantID: "h1", PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)

	filtered, err := svc.Export(ctx, TimelineFilters{TenantID: "h1", Action: "payment.edit", From: base})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	csvBytes, err := WriteCSV(filtered)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvBytes)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "2024-03-08T09:00:00Z,u1,payment.edit"))
}
