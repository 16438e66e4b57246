package bulk

import (
	"fmt"
	"strings"

	"github.com/erp/importer/internal/domain/shared"
)

// EntityKind identifies which source resource an import run processes
type EntityKind string

const (
	EntityCategories EntityKind = "categories"
	EntityProducts   EntityKind = "products"
	EntityStock      EntityKind = "stock"
	EntityCustomers  EntityKind = "customers"
)

// AllKinds lists the kinds in the order a full sync should run them
func AllKinds() []EntityKind {
	return []EntityKind{EntityCategories, EntityProducts, EntityStock, EntityCustomers}
}

// IsValid checks if the entity kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityCategories, EntityProducts, EntityStock, EntityCustomers:
		return true
	}
	return false
}

// ParseEntityKind parses a kind name, case-insensitively
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.ErrUnknownKind.WithMessage(fmt.Sprintf("Unknown import entity kind: %q", s))
	}
	return k, nil
}

// RunStatus represents the terminal or in-flight status of an import run
type RunStatus string

const (
	RunStatusRunning           RunStatus = "running"
	RunStatusCompleted         RunStatus = "completed"
	RunStatusHaltedOnErrorRate RunStatus = "halted_on_error_rate"
	RunStatusFailed            RunStatus = "failed"
)

// IsValid checks if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusHaltedOnErrorRate, RunStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusHaltedOnErrorRate || s == RunStatusFailed
}
