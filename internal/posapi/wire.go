package posapi

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func decimalOrZero(s flexString) decimal.Decimal {
	d, err := decimal.NewFromString(string(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type saleProductBody struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	Tax       json.Number `json:"tax"`
	TaxID     string      `json:"tax_id,omitempty"`
	Note      string      `json:"note,omitempty"`
}

type saleBody struct {
	RegisterID string            `json:"register_id"`
	UserID     string            `json:"user_id"`
	CustomerID string            `json:"customer_id"`
	SaleDate   string            `json:"sale_date"`
	Status     string            `json:"status"`
	Note       string            `json:"note"`
	Products   []saleProductBody `json:"register_sale_products"`
	Payments   []any             `json:"register_sale_payments"`
}

func newSaleBody(sale domain.ParkedSale) saleBody {
	products := make([]saleProductBody, len(sale.LineItems))
	for i, li := range sale.LineItems {
		products[i] = saleProductBody{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			Price:     money(li.PriceExcludingTax),
			Tax:       money(li.TaxAmount),
			TaxID:     li.TaxID,
			Note:      li.Note,
		}
	}

	payments := sale.Payments
	if payments == nil {
		payments = []any{}
	}

	return saleBody{
		RegisterID: sale.RegisterID,
		UserID:     sale.UserID,
		CustomerID: sale.CustomerID,
		SaleDate:   sale.SaleDate.UTC().Format(time.RFC3339),
		Status:     sale.Status,
		Note:       sale.Note,
		Products:   products,
		Payments:   payments,
	}
}
