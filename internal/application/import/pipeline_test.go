package importapp_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/catalog"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/partner"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/erp/importer/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type pipeline struct {
	db      *persistence.Database
	source  *importapp.FakeSource
	service *importapp.ImportService
}

func newPipeline(t *testing.T, source *importapp.FakeSource, tweak ...func(*importapp.Settings)) *pipeline {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: "file::memory:",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	settings := importapp.DefaultSettings()
	settings.CommitRetryInitial = time.Millisecond
	settings.MaxRecordsPerRun = 100
	for _, fn := range tweak {
		fn(&settings)
	}

	service := importapp.NewImportService(importapp.ImportServiceDeps{
		Source:      source,
		Scope:       persistence.NewGormTransactionScope(db.DB),
		Runs:        persistence.NewGormImportRunRepository(db.DB),
		IsTransient: persistence.IsTransient,
		Logger:      zaptest.NewLogger(t),
	}, settings)

	return &pipeline{db: db, source: source, service: service}
}

func (p *pipeline) run(t *testing.T, kind bulk.EntityKind) *bulk.ImportRun {
	t.Helper()
	run, err := p.service.Run(context.Background(), kind, importapp.RunOptions{})
	require.NoError(t, err)
	return run
}

func (p *pipeline) category(t *testing.T, sourceID int64) *catalog.Category {
	t.Helper()
	c, err := persistence.NewGormCategoryRepository(p.db.DB).FindBySourceID(context.Background(), sourceID)
	require.NoError(t, err, "category %d", sourceID)
	return c
}

func (p *pipeline) product(t *testing.T, sourceID int64) *catalog.Product {
	t.Helper()
	prod, err := persistence.NewGormProductRepository(p.db.DB).FindBySourceID(context.Background(), sourceID)
	require.NoError(t, err, "product %d", sourceID)
	return prod
}

func TestPipeline_CategoriesParentsFirst(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(1, "Root", 0).
		AddCategory(2, "Home", 1).
		AddCategory(12, "Shirts", 11).
		AddCategory(11, "Clothes", 10).
		AddCategory(10, "Fashion", 2)
	p := newPipeline(t, source)

	run := p.run(t, bulk.EntityCategories)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Listed, "reserved roots are not counted as listed")
	assert.Equal(t, 3, run.Processed, "reserved roots are not processed")
	assert.Contains(t, run.Render(), "processed 3 (100%)")
	assert.Equal(t, 3, run.Created)
	assert.Equal(t, 0, run.Errors)

	fashion, clothes, shirts := p.category(t, 10), p.category(t, 11), p.category(t, 12)
	assert.Nil(t, fashion.ParentID, "children of the reserved roots become roots")
	assert.Equal(t, fashion.ID, *clothes.ParentID)
	assert.Equal(t, clothes.ID, *shirts.ParentID)
	assert.Equal(t, 2, shirts.Level)

	t.Run("second run is idempotent", func(t *testing.T) {
		again := p.run(t, bulk.EntityCategories)

		assert.Equal(t, bulk.RunStatusCompleted, again.Status)
		assert.Equal(t, 3, again.Skipped)
		assert.Equal(t, 0, again.ImportedCount())

		count, err := persistence.NewGormCategoryRepository(p.db.DB).Count(context.Background(), shared.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("storefront categories are mirrored", func(t *testing.T) {
		pc, err := persistence.NewGormPublicCategoryRepository(p.db.DB).FindBySourceID(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, "Shirts", pc.Name)
		assert.NotEqual(t, shirts.ID, pc.ID)
	})
}

func TestPipeline_CategoryAnomalies(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(30, "Orphan", 77).
		AddCategory(40, "Ping", 41).
		AddCategory(41, "Pong", 40).
		AddCategory(50, "Selfish", 50).
		AddCategory(60, "", 2)
	p := newPipeline(t, source)

	run := p.run(t, bulk.EntityCategories)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 5, run.Processed)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 3, run.Errors)
	assert.Equal(t, 3, run.ClassCounts[bulk.ClassCyclicHierarchy])
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassMissingParent])
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassMalformedData])

	orphan := p.category(t, 30)
	assert.Nil(t, orphan.ParentID, "a missing parent places the category at the root")
	assert.Equal(t, "Category 60", p.category(t, 60).Name)

	_, err := persistence.NewGormCategoryRepository(p.db.DB).FindBySourceID(context.Background(), 40)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPipeline_CategoryMovesWhenSourceParentChanges(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(10, "Fashion", 2).
		AddCategory(20, "Sale", 2).
		AddCategory(11, "Clothes", 10)
	p := newPipeline(t, source)
	p.run(t, bulk.EntityCategories)

	parent := int64(20)
	source.Categories[11].ParentID = &parent
	run := p.run(t, bulk.EntityCategories)

	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, p.category(t, 20).ID, *p.category(t, 11).ParentID)
}

func TestPipeline_CategoryMoveCarriesSubtree(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(10, "X", 0).
		AddCategory(11, "Y", 10).
		AddCategory(12, "Z", 11)
	p := newPipeline(t, source)
	p.run(t, bulk.EntityCategories)
	require.Equal(t, 2, p.category(t, 12).Level)

	// Y becomes a root and X moves below Z; the source tree stays acyclic.
	z := int64(12)
	source.Categories[11].ParentID = nil
	source.Categories[10].ParentID = &z
	run := p.run(t, bulk.EntityCategories)

	require.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.Errors, run.Render())
	assert.Equal(t, 2, run.Updated)

	x, y, zc := p.category(t, 10), p.category(t, 11), p.category(t, 12)
	assert.Nil(t, y.ParentID)
	assert.Equal(t, 0, y.Level)
	assert.Equal(t, y.ID.String(), y.Path)
	assert.Equal(t, y.ID, *zc.ParentID)
	assert.Equal(t, 1, zc.Level)
	assert.Equal(t, y.Path+"/"+zc.ID.String(), zc.Path)
	require.NotNil(t, x.ParentID)
	assert.Equal(t, zc.ID, *x.ParentID)
	assert.Equal(t, 2, x.Level)
	assert.Equal(t, zc.Path+"/"+x.ID.String(), x.Path)

	t.Run("moving back is not mistaken for a cycle", func(t *testing.T) {
		x := int64(10)
		source.Categories[10].ParentID = nil
		source.Categories[11].ParentID = &x
		again := p.run(t, bulk.EntityCategories)

		assert.Equal(t, 0, again.Errors, again.Render())
		xc, yc, zc := p.category(t, 10), p.category(t, 11), p.category(t, 12)
		assert.Nil(t, xc.ParentID)
		assert.Equal(t, xc.ID, *yc.ParentID)
		assert.Equal(t, yc.ID, *zc.ParentID)
		assert.Equal(t, xc.ID.String()+"/"+yc.ID.String()+"/"+zc.ID.String(), zc.Path)
		assert.Equal(t, 2, zc.Level)
	})
}

func TestPipeline_ProductsGuardStorefrontLinks(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(3, "Clothes", 2).
		AddCategory(12, "Summer", 2)
	p := newPipeline(t, source)
	p.run(t, bulk.EntityCategories)

	// 308 exists only in the internal tree, never in the storefront taxonomy
	internalOnly, err := catalog.NewCategory("Clearance", ptr(int64(308)))
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormCategoryRepository(p.db.DB).Save(context.Background(), internalOnly))

	def := int64(3)
	qty := "14"
	source.AddProduct(&integration.SourceProduct{
		ID:                7,
		Name:              "Linen shirt",
		Reference:         "LS-7",
		Price:             "39.90",
		WholesalePrice:    "12.5",
		Weight:            "0.3",
		Active:            true,
		DefaultCategoryID: &def,
		CategoryIDs:       []int64{2, 3, 12, 308},
		ImageIDs:          []int64{71},
		Quantity:          &qty,
	})

	run := p.run(t, bulk.EntityProducts)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 0, run.Errors)
	assert.Equal(t, 1, run.Warnings)
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassReferentialIntegrityViolation])
	require.Len(t, run.Samples, 1)
	assert.Contains(t, run.Samples[0].Message, "308")

	product := p.product(t, 7)
	assert.Equal(t, p.category(t, 3).ID, *product.CategoryID)
	pub, err := persistence.NewGormPublicCategoryRepository(p.db.DB).FindBySourceID(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pub.ID}, product.PublicCategoryIDs)
	assert.True(t, decimal.RequireFromString("39.90").Equal(product.Price))
	assert.True(t, decimal.NewFromInt(14).Equal(product.StockOnHand))
	assert.Equal(t, []string{"prestashop:images/products/7/71"}, product.ImageRefs)
}

func TestPipeline_ProductsStorefrontRelationFallback(t *testing.T) {
	def := int64(3)
	newSource := func() *importapp.FakeSource {
		source := importapp.NewFakeSource().
			AddCategory(3, "Clothes", 2).
			AddCategory(12, "Summer", 2)
		source.AddProduct(&integration.SourceProduct{
			ID: 7, Name: "Linen shirt", Price: "39.90", Active: true,
			DefaultCategoryID: &def, CategoryIDs: []int64{3, 12},
		})
		return source
	}

	t.Run("missing first candidate falls through to the linked relation", func(t *testing.T) {
		p := newPipeline(t, newSource(), func(s *importapp.Settings) {
			s.PublicCategoryModels = []string{"public_categories", importapp.PublicCategoryRelation}
		})
		p.run(t, bulk.EntityCategories)

		run := p.run(t, bulk.EntityProducts)

		assert.Equal(t, 0, run.Warnings, run.Render())
		pub, err := persistence.NewGormPublicCategoryRepository(p.db.DB).FindBySourceID(context.Background(), 12)
		require.NoError(t, err)
		assert.Contains(t, p.product(t, 7).PublicCategoryIDs, pub.ID)
	})

	t.Run("another storefront model never feeds the link table", func(t *testing.T) {
		p := newPipeline(t, newSource(), func(s *importapp.Settings) {
			s.PublicCategoryModels = []string{"website_product_categories", importapp.PublicCategoryRelation}
		})
		p.run(t, bulk.EntityCategories)
		require.NoError(t, p.db.DB.Exec("CREATE TABLE website_product_categories (id TEXT PRIMARY KEY, source_id INTEGER)").Error)
		require.NoError(t, p.db.DB.Exec("INSERT INTO website_product_categories (id, source_id) VALUES (?, ?), (?, ?)",
			uuid.New(), 3, uuid.New(), 12).Error)

		run := p.run(t, bulk.EntityProducts)

		assert.Equal(t, bulk.RunStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Created)
		assert.Equal(t, 1, run.ClassCounts[bulk.ClassReferentialIntegrityViolation])
		require.Len(t, run.Samples, 1)
		assert.Contains(t, run.Samples[0].Message, "website_product_categories")
		assert.Empty(t, p.product(t, 7).PublicCategoryIDs)

		var dangling int64
		require.NoError(t, p.db.DB.Table("product_public_category_rel AS l").
			Joins("LEFT JOIN product_public_categories AS c ON c.id = l.public_category_id").
			Where("c.id IS NULL").
			Count(&dangling).Error)
		assert.Zero(t, dangling)
	})
}

func TestPipeline_ProductsResolveCategoriesOnDemand(t *testing.T) {
	def := int64(12)
	source := importapp.NewFakeSource().
		AddCategory(10, "Fashion", 2).
		AddCategory(12, "Shirts", 10)
	source.AddProduct(&integration.SourceProduct{ID: 1, Name: "Tee", Price: "abc", DefaultCategoryID: &def})
	source.AddProduct(&integration.SourceProduct{ID: 2, Name: "", Price: "5"})
	source.AddStock(&integration.SourceStock{ID: 90, ProductID: 1, Quantity: "8"})
	p := newPipeline(t, source, func(s *importapp.Settings) { s.MirrorPublicCategories = false })

	run := p.run(t, bulk.EntityProducts)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 2, run.ClassCounts[bulk.ClassMalformedData], "bad price and missing name")

	tee := p.product(t, 1)
	assert.Equal(t, p.category(t, 12).ID, *tee.CategoryID)
	assert.True(t, tee.Price.IsZero())
	assert.True(t, decimal.NewFromInt(8).Equal(tee.StockOnHand))
	assert.Equal(t, p.category(t, 10).ID, *p.category(t, 12).ParentID)

	unnamed := p.product(t, 2)
	assert.Equal(t, "Product 2", unnamed.Name)
	fallback, err := persistence.NewGormCategoryRepository(p.db.DB).FindUnlinkedByName(context.Background(), "All", nil)
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, *unnamed.CategoryID)
}

func TestPipeline_ProductsLinkExistingByReference(t *testing.T) {
	source := importapp.NewFakeSource()
	p := newPipeline(t, source)
	ctx := context.Background()

	existing, err := catalog.NewProduct(nil, catalog.ProductDetails{Name: "Old name", Reference: "REF-9"})
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormProductRepository(p.db.DB).Save(ctx, existing))

	source.AddProduct(&integration.SourceProduct{ID: 9, Name: "New name", Reference: "REF-9", Price: "1"})
	run := p.run(t, bulk.EntityProducts)

	assert.Equal(t, 1, run.Updated)
	linked := p.product(t, 9)
	assert.Equal(t, existing.ID, linked.ID)
	assert.Equal(t, "New name", linked.Name)
}

func TestPipeline_Stock(t *testing.T) {
	source := importapp.NewFakeSource()
	source.AddProduct(&integration.SourceProduct{ID: 7, Name: "Mug", Price: "4"})
	p := newPipeline(t, source)
	p.run(t, bulk.EntityProducts)

	source.AddStock(&integration.SourceStock{ID: 1, ProductID: 7, Quantity: "25"})
	source.AddStock(&integration.SourceStock{ID: 2, ProductID: 7, ProductAttributeID: 3, Quantity: "4"})
	source.AddStock(&integration.SourceStock{ID: 3, ProductID: 999, Quantity: "1"})

	run := p.run(t, bulk.EntityStock)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Errors)
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassReferentialIntegrityViolation])
	assert.Equal(t, bulk.PhaseRelationship, run.Samples[0].Phase)
	assert.True(t, decimal.NewFromInt(25).Equal(p.product(t, 7).StockOnHand))

	t.Run("negative quantities are clamped", func(t *testing.T) {
		source.Stocks[1].Quantity = "-3"
		again := p.run(t, bulk.EntityStock)

		assert.Equal(t, 1, again.Updated)
		assert.Equal(t, 1, again.Warnings)
		assert.True(t, p.product(t, 7).StockOnHand.IsZero())
	})
}

func TestPipeline_Customers(t *testing.T) {
	faker := gofakeit.New(42)
	source := importapp.NewFakeSource()
	source.Countries[8] = "FR"
	source.States[313] = "Auvergne-Rhône-Alpes"
	source.AddCustomer(&integration.SourceCustomer{ID: 1, Email: "ANA@example.com", FirstName: "Ana", LastName: "Lopez", Active: true},
		integration.SourceAddress{ID: 11, CustomerID: 1, Address1: faker.Street(), City: "Lyon", CountryID: 8, StateID: 313},
		integration.SourceAddress{ID: 12, CustomerID: 1, Address1: faker.Street(), City: "Nice", CountryID: 8, StateID: 314})
	source.AddCustomer(&integration.SourceCustomer{ID: 2, Email: ""})
	source.AddCustomer(&integration.SourceCustomer{ID: 3, Email: faker.Email(), FirstName: faker.FirstName()})
	p := newPipeline(t, source)
	ctx := context.Background()

	existing, err := partner.NewCustomer(nil, partner.CustomerDetails{Email: "ana@example.com"})
	require.NoError(t, err)
	customers := persistence.NewGormCustomerRepository(p.db.DB)
	require.NoError(t, customers.Save(ctx, existing))

	run := p.run(t, bulk.EntityCustomers)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, source.CallCount("CountryISO"), "country codes are memoised per run")
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassHTTPError], "state 314 is unknown to the source")
	assert.Equal(t, 2, source.CallCount("StateName"))

	ana, err := customers.FindBySourceID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, ana.ID)
	assert.Equal(t, "Ana Lopez", ana.Name)
	require.Len(t, ana.Addresses, 2)
	assert.Equal(t, "FR", ana.Addresses[0].CountryCode)
	assert.Equal(t, "Auvergne-Rhône-Alpes", ana.Addresses[0].State)
	assert.Contains(t, ana.Addresses[0].FullText(), "Lyon, Auvergne-Rhône-Alpes, FR")
	assert.Empty(t, ana.Addresses[1].State)
}

func TestPipeline_ProductQuantityNotNumeric(t *testing.T) {
	bad := "n/a"
	source := importapp.NewFakeSource()
	source.AddProduct(&integration.SourceProduct{ID: 4, Name: "Candle", Price: "6", Active: true, Quantity: &bad})
	p := newPipeline(t, source, func(s *importapp.Settings) { s.MirrorPublicCategories = false })

	run := p.run(t, bulk.EntityProducts)

	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 0, run.Errors)
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassMalformedData])
	require.Len(t, run.Samples, 1)
	assert.Contains(t, run.Samples[0].Message, `"n/a"`)
	assert.True(t, p.product(t, 4).StockOnHand.IsZero())

	t.Run("stored stock survives a later unreadable quantity", func(t *testing.T) {
		good := "12"
		source.Products[4].Quantity = &good
		p.run(t, bulk.EntityProducts)
		require.True(t, decimal.NewFromInt(12).Equal(p.product(t, 4).StockOnHand))

		source.Products[4].Quantity = &bad
		again := p.run(t, bulk.EntityProducts)

		assert.Equal(t, 1, again.Skipped)
		assert.True(t, decimal.NewFromInt(12).Equal(p.product(t, 4).StockOnHand))
	})
}

func TestPipeline_SecondRunChangesNothing(t *testing.T) {
	t.Run("products", func(t *testing.T) {
		def := int64(3)
		qty := "5"
		source := importapp.NewFakeSource().
			AddCategory(3, "Clothes", 2).
			AddCategory(12, "Summer", 2)
		source.AddProduct(&integration.SourceProduct{
			ID: 7, Name: "Linen shirt", Reference: "LS-7", Price: "39.90", WholesalePrice: "12.5", Weight: "0.3",
			Active: true, DefaultCategoryID: &def, CategoryIDs: []int64{3, 12}, ImageIDs: []int64{71}, Quantity: &qty,
		})
		source.AddProduct(&integration.SourceProduct{ID: 8, Name: "Retired scarf", Price: "9", Active: false, DefaultCategoryID: &def})
		p := newPipeline(t, source)
		p.run(t, bulk.EntityCategories)

		first := p.run(t, bulk.EntityProducts)
		require.Equal(t, 2, first.Created, first.Render())
		assert.False(t, p.product(t, 8).Active, "inactive products are stored inactive")

		second := p.run(t, bulk.EntityProducts)

		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 0, second.Updated)
		assert.Equal(t, 2, second.Skipped, second.Render())
		assert.False(t, p.product(t, 8).Active)
	})

	t.Run("stock", func(t *testing.T) {
		source := importapp.NewFakeSource()
		source.AddProduct(&integration.SourceProduct{ID: 7, Name: "Mug", Price: "4"})
		source.AddProduct(&integration.SourceProduct{ID: 9, Name: "Bowl", Price: "6"})
		p := newPipeline(t, source)
		p.run(t, bulk.EntityProducts)
		source.AddStock(&integration.SourceStock{ID: 1, ProductID: 7, Quantity: "25"})
		source.AddStock(&integration.SourceStock{ID: 2, ProductID: 9, Quantity: "0.5"})

		first := p.run(t, bulk.EntityStock)
		require.Equal(t, 2, first.Created, first.Render())

		second := p.run(t, bulk.EntityStock)

		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 0, second.Updated)
		assert.Equal(t, 2, second.Skipped, second.Render())
	})

	t.Run("customers", func(t *testing.T) {
		faker := gofakeit.New(11)
		source := importapp.NewFakeSource()
		source.Countries[8] = "FR"
		source.States[313] = "Auvergne-Rhône-Alpes"
		source.AddCustomer(&integration.SourceCustomer{ID: 1, Email: faker.Email(), FirstName: faker.FirstName(), LastName: faker.LastName(), Active: true},
			integration.SourceAddress{ID: 11, CustomerID: 1, Address1: faker.Street(), City: faker.City(), CountryID: 8, StateID: 313})
		source.AddCustomer(&integration.SourceCustomer{ID: 2, Email: faker.Email(), FirstName: faker.FirstName(), Active: false})
		p := newPipeline(t, source)

		first := p.run(t, bulk.EntityCustomers)
		require.Equal(t, 2, first.Created, first.Render())
		closed, err := persistence.NewGormCustomerRepository(p.db.DB).FindBySourceID(context.Background(), 2)
		require.NoError(t, err)
		assert.False(t, closed.Active, "inactive customers are stored inactive")

		second := p.run(t, bulk.EntityCustomers)

		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 0, second.Updated)
		assert.Equal(t, 2, second.Skipped, second.Render())
	})
}

func TestPipeline_TransientSourceFailureContinues(t *testing.T) {
	source := importapp.NewFakeSource().
		AddCategory(10, "A", 2).
		AddCategory(11, "B", 2).
		AddCategory(12, "C", 2)
	source.Fail(integration.ResourceCategories, 11, fmt.Errorf("%w: read timeout", integration.ErrSourceTimeout))
	p := newPipeline(t, source)

	run := p.run(t, bulk.EntityCategories)

	assert.Equal(t, bulk.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.ClassCounts[bulk.ClassTimeout])
}

func TestPipeline_BreakerHaltsProducts(t *testing.T) {
	source := importapp.NewFakeSource()
	for id := int64(1); id <= 30; id++ {
		source.AddProduct(&integration.SourceProduct{ID: id, Name: fmt.Sprintf("P%d", id), Price: "1"})
		if id%2 == 0 {
			source.Fail(integration.ResourceProducts, id, fmt.Errorf("%w: 500", integration.ErrSourceHTTP))
		}
	}
	p := newPipeline(t, source)

	run := p.run(t, bulk.EntityProducts)

	assert.Equal(t, bulk.RunStatusHaltedOnErrorRate, run.Status)
	assert.Equal(t, 20, run.Processed)
	assert.Equal(t, 10, run.Errors)
	assert.True(t, run.IsHalted())

	stored, err := p.service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, bulk.RunStatusHaltedOnErrorRate, stored.Status)
}

type busyLock struct{}

func (busyLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	return nil, shared.ErrConcurrentRun
}

func TestImportService_RejectsConcurrentRun(t *testing.T) {
	p := newPipeline(t, importapp.NewFakeSource())
	service := importapp.NewImportService(importapp.ImportServiceDeps{
		Source: p.source,
		Scope:  persistence.NewGormTransactionScope(p.db.DB),
		Runs:   persistence.NewGormImportRunRepository(p.db.DB),
		Lock:   busyLock{},
	}, importapp.DefaultSettings())

	_, err := service.Run(context.Background(), bulk.EntityProducts, importapp.RunOptions{})
	assert.ErrorIs(t, err, shared.ErrConcurrentRun)

	result, err := service.ListRuns(context.Background(), importapp.ListRunsFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount, "a rejected run leaves no history")
}

func TestImportService_UnknownKind(t *testing.T) {
	p := newPipeline(t, importapp.NewFakeSource())

	_, err := p.service.Run(context.Background(), bulk.EntityKind("orders"), importapp.RunOptions{})
	assert.ErrorIs(t, err, shared.ErrUnknownKind)
}

func TestImportService_RecoverStale(t *testing.T) {
	p := newPipeline(t, importapp.NewFakeSource())
	ctx := context.Background()
	runs := persistence.NewGormImportRunRepository(p.db.DB)

	stale, err := bulk.NewImportRun(bulk.EntityStock, 20, 0)
	require.NoError(t, err)
	require.NoError(t, runs.Save(ctx, stale))

	recovered, err := p.service.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	found, err := runs.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, bulk.RunStatusFailed, found.Status)
	assert.NotEmpty(t, found.Reason)
}

func ptr[T any](v T) *T { return &v }
