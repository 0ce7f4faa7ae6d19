package service

import "github.com/shopspring/decimal"

// LineAmounts is the priced form of one line item.
type LineAmounts struct {
	Total             decimal.Decimal
	PriceExcludingTax decimal.Decimal
	TaxAmount         decimal.Decimal
}

var one = decimal.NewFromInt(1)

// ApportionTax splits a line total into its tax-exclusive price and tax at
// rate. With inclusive pricing total already contains the tax and the tax
// amount absorbs the cent rounding, so PriceExcludingTax + TaxAmount == Total.
// With exclusive pricing the tax is added on top of total. A non-positive
// rate yields no tax.
func ApportionTax(total, rate decimal.Decimal, taxExclusive bool) LineAmounts {
	total = total.Round(2)

	if !rate.IsPositive() {
		return LineAmounts{Total: total, PriceExcludingTax: total, TaxAmount: decimal.Zero}
	}

	if taxExclusive {
		tax := total.Mul(rate).Round(2)
		return LineAmounts{Total: total.Add(tax), PriceExcludingTax: total, TaxAmount: tax}
	}

	excl := total.DivRound(one.Add(rate), 2)
	return LineAmounts{Total: total, PriceExcludingTax: excl, TaxAmount: total.Sub(excl)}
}
