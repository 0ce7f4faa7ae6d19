package domain

import (
	"github.com/shopspring/decimal"
)

// Pagination is the page metadata returned with every list response.
type Pagination struct {
	Count int `json:"count"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// HasNext reports whether a page after the current one exists.
func (p Pagination) HasNext() bool {
	return p.Page < p.Pages
}

// Page is one bounded batch of a paginated listing.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ExternalProduct is a read-only snapshot of a platform product.
type ExternalProduct struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.NullDecimal
	Quantity     decimal.NullDecimal
	BrandName    string
	SupplierName string
	SKU          string
}

// UnmarshalJSON resolves each logical field from its candidate wire keys.
func (p *ExternalProduct) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}

	*p = ExternalProduct{
		ID:           f.str("id", "product_id"),
		Name:         f.str("name", "product_name", "variant_name"),
		Description:  f.str("description"),
		Price:        f.dec("price", "price_including_tax", "retail_price"),
		Quantity:     f.dec("quantity", "inventory_level", "inventory_count"),
		BrandName:    f.str("brand_name", "brandName"),
		SupplierName: f.str("supplier_name", "supplierName"),
		SKU:          f.str("sku", "handle"),
	}
	if p.BrandName == "" {
		p.BrandName = f.nested("brand").str("name")
	}
	if p.SupplierName == "" {
		p.SupplierName = f.nested("supplier").str("name")
	}
	return nil
}

// ExternalCustomer is a read-only snapshot of a platform customer.
type ExternalCustomer struct {
	ID           string
	FirstName    string
	LastName     string
	Name         string
	Phone        string
	Mobile       string
	Email        string
	DateOfBirth  string
	Gender       string
	CustomerCode string
	Address1     string
	Address2     string
	City         string
	State        string
	Postcode     string
	Country      string
}

// UnmarshalJSON resolves each logical field from its candidate wire keys, in
// order. This is the only place alternate key spellings are handled.
func (c *ExternalCustomer) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}

	*c = ExternalCustomer{
		ID:           f.str("id", "customer_id"),
		FirstName:    f.str("first_name", "firstName"),
		LastName:     f.str("last_name", "lastName"),
		Name:         f.str("name", "customer_name", "customerName"),
		Phone:        f.str("phone", "phone_number", "phoneNumber"),
		Mobile:       f.str("mobile", "mobile_number", "mobileNumber"),
		Email:        f.str("email", "email_address"),
		DateOfBirth:  f.str("date_of_birth", "dateOfBirth", "dob"),
		Gender:       f.str("sex", "gender"),
		CustomerCode: f.str("customer_code", "customerCode", "code"),
		Address1:     f.str("physical_address_1", "physical_address1", "address1", "postal_address_1"),
		Address2:     f.str("physical_address_2", "physical_address2", "address2", "postal_address_2"),
		City:         f.str("physical_city", "city", "postal_city"),
		State:        f.str("physical_state", "state", "postal_state"),
		Postcode:     f.str("physical_postcode", "postcode", "postal_postcode", "zip"),
		Country:      f.str("physical_country_id", "country", "country_id"),
	}
	return nil
}

// Register is a POS till.
type Register struct {
	ID   string
	Name string
}

func (r *Register) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*r = Register{ID: f.str("id"), Name: f.str("name", "register_name")}
	return nil
}

// User is a platform staff account.
type User struct {
	ID          string
	DisplayName string
	FirstName   string
	LastName    string
	Username    string
}

func (u *User) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*u = User{
		ID:          f.str("id"),
		DisplayName: f.str("display_name", "displayName"),
		FirstName:   f.str("first_name", "firstName"),
		LastName:    f.str("last_name", "lastName"),
		Username:    f.str("username"),
	}
	return nil
}

// Tax is a platform sales tax. Rate is a fraction (0.125 for 12.5%).
type Tax struct {
	ID        string
	Name      string
	Rate      decimal.Decimal
	IsDefault bool
}

func (t *Tax) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	isDefault, _ := f.boolean("is_default", "default")
	*t = Tax{
		ID:        f.str("id"),
		Name:      f.str("name", "display_name"),
		Rate:      f.dec("rate", "tax_rate").Decimal,
		IsDefault: isDefault,
	}
	return nil
}

// RetailerSettings carries the account-wide pricing flags.
type RetailerSettings struct {
	TaxExclusive bool
}

func (s *RetailerSettings) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	s.TaxExclusive, _ = f.boolean("tax_exclusive", "taxExclusive")
	return nil
}
