package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func snap(t *testing.T, id string, body map[string]any) Snapshot {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return Snapshot{Ref: NewRef("h1", "items", id), Data: raw}
}

func TestApplyComparesDecimalStringsNumerically(t *testing.T) {
	rows := []Snapshot{
		snap(t, "a", map[string]any{"qty": decimal.RequireFromString("9.5")}),
		snap(t, "b", map[string]any{"qty": decimal.RequireFromString("10")}),
	}
	q := Query{Tenant: "h1", Collection: "items"}.Where("qty", OpLt, decimal.NewFromInt(10))
	out, err := q.Apply(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Ref.ID)
}

func TestApplyComparesTimes(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Snapshot{
		snap(t, "old", map[string]any{"date": base}),
		snap(t, "new", map[string]any{"date": base.Add(48 * time.Hour)}),
	}
	q := Query{Tenant: "h1", Collection: "items"}.Where("date", OpGt, base.Add(time.Hour))
	out, err := q.Apply(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", out[0].Ref.ID)
}

func TestApplyOrderingAndLimit(t *testing.T) {
	rows := []Snapshot{
		snap(t, "a", map[string]any{"name": "beta"}),
		snap(t, "b", map[string]any{"name": "alpha"}),
		snap(t, "c", map[string]any{"name": "gamma"}),
	}
	out, err := Query{Tenant: "h1", Collection: "items", OrderBy: "name", Desc: true, Limit: 2}.Apply(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "c", out[0].Ref.ID)
	require.Equal(t, "a", out[1].Ref.ID)
}

func TestApplyNotEqualKeepsMissingFields(t *testing.T) {
	rows := []Snapshot{
		snap(t, "a", map[string]any{"status": "Cancelled"}),
		snap(t, "b", map[string]any{"other": true}),
	}
	out, err := Query{Tenant: "h1", Collection: "items"}.Where("status", OpNe, "Cancelled").Apply(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].Ref.ID)
}

func TestRefValidate(t *testing.T) {
	require.NoError(t, NewRef("h1", "items", "x").Validate())
	require.ErrorIs(t, NewRef("", "items", "x").Validate(), ErrInvalidRef)
	require.ErrorIs(t, NewRef("h1", "items", "a/b").Validate(), ErrInvalidRef)
}

func TestMergeFieldsOverlaysTopLevel(t *testing.T) {
	out, err := MergeFields(json.RawMessage(`{"a":1,"b":{"c":2}}`), map[string]any{"b": "x", "d": true})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":"x","d":true}`, string(out))
}
