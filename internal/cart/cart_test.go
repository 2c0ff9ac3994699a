package cart

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/shopscan/internal/domain"
)

func item(id, name, cost string) *domain.Item {
	return &domain.Item{ID: id, Code: "C-" + id, Name: name, Cost: decimal.RequireFromString(cost)}
}

func TestAddMergesSameItem(t *testing.T) {
	c := New()
	soap := item("1", "Soap", "45.50")

	_, err := c.Add(soap, 2)
	require.NoError(t, err)
	e, err := c.Add(soap, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, e.Quantity)
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Quantity)
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	c := New()
	_, err := c.Add(item("a", "Apple", "1.00"), 1)
	require.NoError(t, err)
	_, err = c.Add(item("b", "Bread", "2.00"), 1)
	require.NoError(t, err)
	_, err = c.Add(item("a", "Apple", "1.00"), 4)
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ItemID)
	assert.Equal(t, 5, entries[0].Quantity)
	assert.Equal(t, "b", entries[1].ItemID)
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	c := New()
	for _, qty := range []int{0, -1, -100} {
		_, err := c.Add(item("1", "Soap", "1.00"), qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Equal(t, 0, c.Len())
}

func TestAddRejectsNilItem(t *testing.T) {
	_, err := New().Add(nil, 1)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestTotalIsOrderIndependent(t *testing.T) {
	a := item("a", "A", "10.00")
	b := item("b", "B", "7.50")

	first := New()
	_, _ = first.Add(a, 1)
	_, _ = first.Add(b, 2)

	second := New()
	_, _ = second.Add(b, 2)
	_, _ = second.Add(a, 1)

	assert.True(t, first.Total().Equal(decimal.RequireFromString("25.00")))
	assert.True(t, first.Total().Equal(second.Total()))
	assert.Equal(t, "25.00", first.View().Total)
}

func TestTotalIsExact(t *testing.T) {
	c := New()
	_, err := c.Add(item("x", "Gum", "0.10"), 3)
	require.NoError(t, err)

	assert.True(t, c.Total().Equal(decimal.RequireFromString("0.3")))
}

func TestSoapScenarioTotal(t *testing.T) {
	c := New()
	_, err := c.Add(item("soap", "Soap", "45.50"), 3)
	require.NoError(t, err)

	v := c.View()
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "Soap", v.Lines[0].Name)
	assert.Equal(t, 3, v.Lines[0].Quantity)
	assert.Equal(t, "136.50", v.Lines[0].Subtotal)
	assert.Equal(t, "136.50", v.Total)
}

func TestRemoveShiftsLaterEntries(t *testing.T) {
	c := New()
	_, _ = c.Add(item("a", "A", "1"), 1)
	_, _ = c.Add(item("b", "B", "2"), 1)
	_, _ = c.Add(item("c", "C", "3"), 1)

	removed, err := c.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ItemID)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ItemID)
	assert.Equal(t, "c", entries[1].ItemID)
	assert.Equal(t, "4.00", c.View().Total)
}

func TestRemoveOutOfRange(t *testing.T) {
	c := New()
	_, _ = c.Add(item("a", "A", "1"), 1)

	for _, idx := range []int{-1, 1, 7} {
		_, err := c.Remove(idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	assert.Equal(t, 1, c.Len())
}

func TestClear(t *testing.T) {
	c := New()
	_, _ = c.Add(item("a", "A", "1"), 2)
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Total().IsZero())
	assert.Equal(t, "0.00", c.View().Total)
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := New()
	_, _ = c.Add(item("a", "A", "1"), 2)

	entries := c.Entries()
	entries[0].Quantity = 99

	assert.Equal(t, 2, c.Entries()[0].Quantity)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"45.5", "45.50"},
		{"136.5", "136.50"},
		{"0.005", "0.01"},
		{"2.344", "2.34"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestConcurrentAdds(t *testing.T) {
	c := New()
	soap := item("soap", "Soap", "1.25")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Add(soap, 2)
		}()
	}
	wg.Wait()

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 100, entries[0].Quantity)
	assert.Equal(t, "125.00", c.View().Total)
}
