package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-06")
	require.NoError(t, err)
	require.Equal(t, "June 2024", p.Label())
	require.Equal(t, Period("2024-05"), p.Previous())
	require.Equal(t, Period("2023-12"), Period("2024-01").Previous())

	_, err = ParsePeriod("2024/06")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, meta := Paginate(items, 2, 2)
	require.Equal(t, []int{3, 4}, page)
	require.Equal(t, 3, meta.TotalPages)

	page, _ = Paginate(items, 9, 2)
	require.Empty(t, page)
}
