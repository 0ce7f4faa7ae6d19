package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
)

func stubLookups(p *mockPlatform, taxes []domain.Tax, taxErr error, settings domain.RetailerSettings, settingsErr error) {
	p.On("Registers", mock.Anything).Return([]domain.Register{{ID: "reg-1", Name: "Front"}, {ID: "reg-2", Name: "Dispensary"}}, nil)
	p.On("Users", mock.Anything).Return([]domain.User{
		{ID: "u-1", DisplayName: "Store Manager"},
		{ID: "u-2", FirstName: "Pat", LastName: "Pharmacist"},
	}, nil)
	p.On("Taxes", mock.Anything).Return(taxes, taxErr)
	p.On("RetailerSettings", mock.Anything).Return(settings, settingsErr)
}

func TestResolve_AllResolved(t *testing.T) {
	p := new(mockPlatform)
	stubLookups(p, []domain.Tax{
		{ID: "tax-0", Name: "Exempt", Rate: decimal.Zero},
		{ID: "tax-1", Name: "VAT", Rate: d("0.125"), IsDefault: true},
	}, nil, domain.RetailerSettings{TaxExclusive: true}, nil)

	r := NewSaleConfigResolver(p, "Dispensary", "Pat Pharmacist", newTestLogger())
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "reg-2", res.Config.RegisterID)
	assert.Equal(t, "u-2", res.Config.UserID)
	assert.Equal(t, "Pat Pharmacist", res.Config.UserName)
	assert.Equal(t, "tax-1", res.Config.TaxID)
	assert.True(t, res.Config.TaxRate.Equal(d("0.125")))
	assert.True(t, res.Config.TaxExclusive)
	assert.Empty(t, res.Degraded)
}

func TestResolve_RegisterNotFoundListsAvailable(t *testing.T) {
	p := new(mockPlatform)
	p.On("Registers", mock.Anything).Return([]domain.Register{{ID: "r1", Name: "Front"}, {ID: "r2", Name: "Drive-Thru"}}, nil)

	r := NewSaleConfigResolver(p, "front", "Store Manager", newTestLogger())
	_, err := r.Resolve(context.Background())

	var notFound *domain.RegisterNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "front", notFound.Expected)
	assert.Equal(t, []string{"Front", "Drive-Thru"}, notFound.Available)
	p.AssertNotCalled(t, "Users", mock.Anything)
}

func TestResolve_UserNotFound(t *testing.T) {
	p := new(mockPlatform)
	stubLookups(p, nil, nil, domain.RetailerSettings{}, nil)

	r := NewSaleConfigResolver(p, "Front", "Nobody", newTestLogger())
	_, err := r.Resolve(context.Background())

	var notFound *domain.UserNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"Store Manager", "Pat Pharmacist"}, notFound.Available)
}

func TestResolve_DegradedLookups(t *testing.T) {
	tests := []struct {
		name        string
		taxes       []domain.Tax
		taxErr      error
		settingsErr error
		wantTax     domain.Tax
		wantLookups []string
	}{
		{
			name:        "tax lookup fails",
			taxErr:      errors.New("forbidden"),
			wantTax:     domain.NoTax(),
			wantLookups: []string{"tax"},
		},
		{
			name:        "no taxes configured",
			taxes:       []domain.Tax{},
			wantTax:     domain.NoTax(),
			wantLookups: []string{"tax"},
		},
		{
			name:        "negative rate",
			taxes:       []domain.Tax{{ID: "t1", Name: "Broken", Rate: d("-0.1")}},
			wantTax:     domain.Tax{ID: "t1", Name: "Broken", Rate: decimal.Zero},
			wantLookups: []string{"tax"},
		},
		{
			name:        "settings fail and first tax used",
			taxes:       []domain.Tax{{ID: "t1", Name: "GST", Rate: d("0.15")}},
			settingsErr: errors.New("timeout"),
			wantTax:     domain.Tax{ID: "t1", Name: "GST", Rate: d("0.15")},
			wantLookups: []string{"tax_exclusive"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(mockPlatform)
			stubLookups(p, tt.taxes, tt.taxErr, domain.RetailerSettings{TaxExclusive: true}, tt.settingsErr)

			res, err := NewSaleConfigResolver(p, "Front", "Store Manager", newTestLogger()).Resolve(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantTax.ID, res.Config.TaxID)
			assert.Equal(t, tt.wantTax.Name, res.Config.TaxName)
			assert.True(t, res.Config.TaxRate.Equal(tt.wantTax.Rate))
			assert.False(t, res.Config.TaxRate.IsNegative())

			var lookups []string
			for _, dg := range res.Degraded {
				lookups = append(lookups, dg.Lookup)
				assert.NotEmpty(t, dg.Reason)
			}
			assert.Equal(t, tt.wantLookups, lookups)

			if tt.settingsErr != nil {
				assert.False(t, res.Config.TaxExclusive)
			}
		})
	}
}

func TestResolve_CachedUntilReset(t *testing.T) {
	p := new(mockPlatform)
	stubLookups(p, []domain.Tax{{ID: "t1", Rate: d("0.1")}}, nil, domain.RetailerSettings{}, nil)

	r := NewSaleConfigResolver(p, "Front", "Store Manager", newTestLogger())
	ctx := context.Background()

	_, err := r.Resolve(ctx)
	require.NoError(t, err)
	_, err = r.Resolve(ctx)
	require.NoError(t, err)
	p.AssertNumberOfCalls(t, "Registers", 1)

	r.Reset()
	_, err = r.Resolve(ctx)
	require.NoError(t, err)
	p.AssertNumberOfCalls(t, "Registers", 2)
}
