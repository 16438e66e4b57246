// Package models contains GORM persistence models that map to database tables.
// Domain entities stay free of ORM tags; each model converts with ToDomain / FromDomain.
//
// Tables:
//   - categories, product_public_categories (internal and public taxonomies)
//   - products, product_public_category_rel (product to public category links)
//   - stock_levels
//   - customers, customer_addresses
//   - import_runs
package models
