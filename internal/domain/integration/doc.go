// Package integration contains the remote catalog source bounded context.
//
// Key concepts:
//   - CatalogSource: port for reading categories, products, stock rows and customers
//     from the remote catalog API
//   - Pager: lazy, page-restartable iteration over a resource listing
//   - Source* types: ephemeral records fetched per run and discarded after mapping
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
