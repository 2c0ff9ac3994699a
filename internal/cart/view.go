package cart

import "github.com/shopspring/decimal"

// Line is the display form of an Entry. Money is rounded to two places here
// and nowhere else.
type Line struct {
	Index    int    `json:"index"`
	ItemID   string `json:"item_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Cost     string `json:"cost"`
	Quantity int    `json:"quantity"`
	Subtotal string `json:"subtotal"`
}

type View struct {
	Lines []Line `json:"lines"`
	Total string `json:"total"`
	Count int    `json:"count"`
}

// FormatMoney renders d with exactly two decimal places, rounding half away
// from zero.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// View returns a consistent snapshot of lines and total for display.
func (c *Cart) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]Line, 0, len(c.entries))
	for i, e := range c.entries {
		lines = append(lines, Line{
			Index:    i,
			ItemID:   e.ItemID,
			Code:     e.Code,
			Name:     e.Name,
			Cost:     FormatMoney(e.Cost),
			Quantity: e.Quantity,
			Subtotal: FormatMoney(e.Subtotal()),
		})
	}
	return View{
		Lines: lines,
		Total: FormatMoney(total(c.entries)),
		Count: len(c.entries),
	}
}
