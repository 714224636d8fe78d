package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcanna/m/domain"
	"medcanna/m/internal/accounts"
	"medcanna/m/internal/database"
	"medcanna/m/internal/documents"
	"medcanna/m/internal/gate"
	"medcanna/m/internal/ledger"
	"medcanna/m/internal/migrations"
	"medcanna/m/internal/products"
	"medcanna/m/internal/storage"
)

type fixture struct {
	catalog  *Service
	accounts *accounts.Service
	docs     *documents.Service
}

func setupCatalog(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	acc := accounts.New(db)
	prods := products.New(db, ledger.New(db, 3))
	_, err = prods.Create(ctx, products.CreateRequest{Name: "CBD Oil", Category: "oil", Price: decimal.RequireFromString("199.90"), InitialStock: 10})
	require.NoError(t, err)
	_, err = prods.Create(ctx, products.CreateRequest{Name: "Balm", Category: "topical", Price: decimal.RequireFromString("59.00")})
	require.NoError(t, err)
	hidden, err := prods.Create(ctx, products.CreateRequest{Name: "Discontinued", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.NoError(t, prods.Deactivate(ctx, hidden.ID))

	disk, err := storage.NewDisk(t.TempDir(), "/files")
	require.NoError(t, err)
	return fixture{catalog: New(acc, prods), accounts: acc, docs: documents.New(db, disk)}
}

func TestQuery_Anonymous(t *testing.T) {
	f := setupCatalog(t)
	view, err := f.catalog.Query(context.Background(), nil, products.Filter{})
	require.NoError(t, err)

	assert.Equal(t, gate.TierAnonymous, view.Tier)
	assert.False(t, view.CanPurchase)
	assert.False(t, view.HasUploadedPrescription)
	assert.False(t, view.PriceVisible)
	require.Len(t, view.Products, 2)
	for _, p := range view.Products {
		assert.Nil(t, p.Price, p.Name)
	}
	assert.Equal(t, "Balm", view.Products[0].Name)
	assert.False(t, view.Products[0].InStock)
	assert.True(t, view.Products[1].InStock)
}

func TestQuery_PatientUnlocksStepByStep(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	patient, err := f.accounts.Register(ctx, accounts.RegisterRequest{Name: "Pat", Email: "pat@example.com", Password: "pw", Role: "patient"})
	require.NoError(t, err)
	admin, err := f.accounts.CreateAdmin(ctx, "Admin", "admin@example.com", "pw")
	require.NoError(t, err)

	view, err := f.catalog.Query(ctx, &patient.ID, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierPrescriptionRequired, view.Tier)
	assert.Nil(t, view.Products[0].Price)

	_, err = f.docs.Submit(ctx, patient.ID, domain.DocumentPrescription, "rx.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	view, err = f.catalog.Query(ctx, &patient.ID, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierAnvisaRequired, view.Tier)
	assert.True(t, view.HasUploadedPrescription)
	assert.False(t, view.CanPurchase)
	require.NotNil(t, view.Products[0].Price)
	assert.True(t, decimal.RequireFromString("59").Equal(*view.Products[0].Price))

	anvisa, err := f.docs.Submit(ctx, patient.ID, domain.DocumentAnvisa, "anvisa.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	view, err = f.catalog.Query(ctx, &patient.ID, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierPendingApproval, view.Tier)
	assert.True(t, view.HasAnvisaDocument)
	assert.False(t, view.CanPurchase)

	_, err = f.docs.Approve(ctx, anvisa.ID, admin.ID, "")
	require.NoError(t, err)
	view, err = f.catalog.Query(ctx, &patient.ID, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierUnlocked, view.Tier)
	assert.True(t, view.CanPurchase)
}

func TestQuery_RolesAndFilters(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	vendor, err := f.accounts.Register(ctx, accounts.RegisterRequest{Name: "V", Email: "v@example.com", Password: "pw", Role: "vendor"})
	require.NoError(t, err)
	admin, err := f.accounts.CreateAdmin(ctx, "Admin", "admin@example.com", "pw")
	require.NoError(t, err)

	view, err := f.catalog.Query(ctx, &vendor.ID, products.Filter{Category: "oil"})
	require.NoError(t, err)
	assert.Equal(t, gate.TierViewOnly, view.Tier)
	assert.True(t, view.PriceVisible)
	assert.False(t, view.CanPurchase)
	require.Len(t, view.Products, 1)
	assert.NotNil(t, view.Products[0].Price)

	view, err = f.catalog.Query(ctx, &admin.ID, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierAdmin, view.Tier)
	assert.True(t, view.CanPurchase)

	ghost := int64(404)
	view, err = f.catalog.Query(ctx, &ghost, products.Filter{})
	require.NoError(t, err)
	assert.Equal(t, gate.TierAnonymous, view.Tier)
}
