package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter compares a top-level document field with a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection within a tenant.
type Query struct {
	Tenant     string
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Where appends an equality or range filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Validate checks the query scope.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Tenant) == "" || strings.TrimSpace(q.Collection) == "" {
		return ErrInvalidRef
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return nil
}

// Apply filters, orders and limits candidate snapshots. Backends that cannot
// evaluate a query natively hand their candidates to Apply.
func (q Query) Apply(candidates []Snapshot) ([]Snapshot, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	type row struct {
		snap   Snapshot
		fields map[string]any
	}
	rows := make([]row, 0, len(candidates))
	for _, snap := range candidates {
		fields, err := decodeFields(snap.Data)
		if err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", snap.Ref, err)
		}
		if matchAll(fields, filters) {
			rows = append(rows, row{snap: snap, fields: fields})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := compareLoose(rows[i].fields[q.OrderBy], rows[j].fields[q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	} else {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].snap.Ref.ID < rows[j].snap.Ref.ID })
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.snap
	}
	return out, nil
}

func matchAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		actual, present := fields[f.Field]
		if !present {
			if f.Op == OpNe {
				continue
			}
			if f.Op == OpEq && f.Value == nil {
				continue
			}
			return false
		}
		c, ok := compare(actual, f.Value)
		switch f.Op {
		case OpEq:
			if !ok || c != 0 {
				return false
			}
		case OpNe:
			if ok && c == 0 {
				return false
			}
		case OpLt:
			if !ok || c >= 0 {
				return false
			}
		case OpLte:
			if !ok || c > 0 {
				return false
			}
		case OpGt:
			if !ok || c <= 0 {
				return false
			}
		case OpGte:
			if !ok || c < 0 {
				return false
			}
		}
	}
	return true
}

func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// normalize converts a Go value to its JSON shape so filters compare against
// what was stored (decimals as strings, times as RFC3339).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: filter value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("docstore: filter value: %w", err)
	}
	return out, nil
}

// compare orders two JSON scalars. Numbers and numeric strings compare as
// decimals, RFC3339 strings as instants, everything else as strings. The
// boolean result is false when the values cannot be ordered.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		if !ab {
			return -1, true
		}
		return 1, true
	}
	as, aok := scalarString(a)
	bs, bok := scalarString(b)
	if !aok || !bok {
		return 0, false
	}
	if ad, err := decimal.NewFromString(as); err == nil {
		if bd, err := decimal.NewFromString(bs); err == nil {
			return ad.Cmp(bd), true
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt), true
		}
	}
	return strings.Compare(as, bs), true
}

// compareLoose is compare for sorting: missing values sort first.
func compareLoose(a, b any) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
