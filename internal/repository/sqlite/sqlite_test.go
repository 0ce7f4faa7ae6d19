package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/migrations"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunSQLiteMigrations(ctx, db, migrations.SQLite(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewStore(db)
}

func TestMedications_InsertGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Medications.Insert(ctx, &domain.Medication{
		ID: "med-1", Name: "Amoxicillin 500mg", Strength: "500mg", Count: 30,
		ExternalProductID: "prod-1", UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("4.25")), SyncedAt: now,
	}))
	require.NoError(t, store.Medications.Insert(ctx, &domain.Medication{
		ID: "med-2", Name: "Saline", ExternalProductID: "prod-2", SyncedAt: now,
	}))

	got, err := store.Medications.GetByIDs(ctx, []string{"med-1", "med-2", "med-missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]domain.Medication{}
	for _, m := range got {
		byID[m.ID] = m
	}
	assert.True(t, byID["med-1"].UnitPrice.Decimal.Equal(decimal.RequireFromString("4.25")))
	assert.False(t, byID["med-2"].UnitPrice.Valid)
	assert.True(t, now.Equal(byID["med-1"].SyncedAt))

	n, err := store.Medications.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := store.Medications.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMedications_DuplicateExternalIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Medications.Insert(ctx, &domain.Medication{ID: "a", Name: "A", ExternalProductID: "prod-1"}))
	assert.Error(t, store.Medications.Insert(ctx, &domain.Medication{ID: "b", Name: "B", ExternalProductID: "prod-1"}))
}

func TestPatients_GetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dob := time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Patients.Insert(ctx, &domain.Patient{
		ID: "pat-1", Name: "Ada Lovelace", DateOfBirth: &dob, Gender: domain.GenderFemale,
		ExternalCustomerID: "cust-1", SyncedAt: time.Now(),
	}))

	p, err := store.Patients.GetByID(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", p.ExternalCustomerID)
	require.NotNil(t, p.DateOfBirth)
	assert.True(t, dob.Equal(*p.DateOfBirth))

	_, err = store.Patients.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParkedSales_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"sale-1", "sale-2", "sale-3"} {
		require.NoError(t, store.ParkedSales.Create(ctx, &domain.ParkedSaleRecord{
			ID:             "ps-" + id,
			PrescriptionID: "rx-1",
			ExternalSaleID: id,
			Reference:      "REF" + id,
			Status:         domain.ParkedSaleStatus,
			TotalPrice:     decimal.RequireFromString("112.5"),
			TotalTax:       decimal.RequireFromString("12.5"),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, total, err := store.ParkedSales.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, recs, 2)
	assert.Equal(t, "sale-3", recs[0].ExternalSaleID)
	assert.True(t, recs[0].TotalPrice.Equal(decimal.RequireFromString("112.50")))

	byRx, err := store.ParkedSales.ListByPrescription(ctx, "rx-1")
	require.NoError(t, err)
	assert.Len(t, byRx, 3)
}
