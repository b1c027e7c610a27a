package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

func TestWhereClausePushesStringEquality(t *testing.T) {
	q := docstore.Query{Tenant: "h1", Collection: "invoices"}.
		Where("patientId", docstore.OpEq, "p-1").
		Where("status", docstore.OpEq, "Paid")
	where, args, complete := whereClause(q)
	require.True(t, complete)
	require.Equal(t, "tenant_id = $1 AND collection = $2 AND body->>$3 = $4 AND body->>$5 = $6", where)
	require.Equal(t, []any{"h1", "invoices", "patientId", "p-1", "status", "Paid"}, args)
}

func TestWhereClauseLeavesRangeFiltersInMemory(t *testing.T) {
	q := docstore.Query{Tenant: "h1", Collection: "batches"}.Where("quantity", docstore.OpGt, 0)
	where, args, complete := whereClause(q)
	require.False(t, complete)
	require.Equal(t, "tenant_id = $1 AND collection = $2", where)
	require.Len(t, args, 2)
}

func TestMapErrorTranslatesSerializationFailures(t *testing.T) {
	err := mapError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure, Message: "could not serialize"}))
	require.ErrorIs(t, err, docstore.ErrConflict)

	err = mapError(&pgconn.PgError{Code: codeDeadlockDetected})
	require.ErrorIs(t, err, docstore.ErrConflict)

	err = mapError(&pgconn.PgError{Code: codeUniqueViolation})
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	other := errors.New("network down")
	require.Equal(t, other, mapError(other))
	require.NoError(t, mapError(nil))
}
