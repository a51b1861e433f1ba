// Package pricing implements the monetary math for a checkout: subtotal,
// discount application, GST, grand total and the minor-unit amount sent to
// the payment gateway. All arithmetic uses shopspring/decimal; floats never
// touch money.
package pricing

import "github.com/shopspring/decimal"

// GSTRate is the goods-and-services tax rate applied on the discounted
// subtotal.
var GSTRate = decimal.NewFromFloat(0.18)

var hundred = decimal.NewFromInt(100)

// LineItem is a single cart line as seen by the calculator. The calculator
// never mutates items.
type LineItem struct {
	ID        string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns the sum of unit price times quantity across all items.
// An empty list yields zero.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// Tax returns the GST due on the discounted subtotal, rounded to two
// decimal places.
func Tax(items []LineItem, discount decimal.Decimal) decimal.Decimal {
	base := Subtotal(items).Sub(discount)
	return base.Mul(GSTRate).Round(2)
}

// Total returns the amount the customer pays: discounted subtotal plus GST,
// each rounded to two decimal places.
func Total(items []LineItem, discount decimal.Decimal) decimal.Decimal {
	base := Subtotal(items).Sub(discount).Round(2)
	return base.Add(Tax(items, discount))
}

// MinorUnits converts a major-unit total to the smallest currency
// subdivision (paise for INR): round(total * 100). Rounding is
// half-away-from-zero, the single rounding at the minor-unit boundary.
func MinorUnits(total decimal.Decimal) int64 {
	return total.Mul(hundred).Round(0).IntPart()
}
