package importapp

import (
	"strings"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/shopspring/decimal"
)

// parseAmount parses a source decimal. Empty values are zero; unparsable values are zero
// with a MalformedData warning.
func parseAmount(recordID int64, field, raw string) (decimal.Decimal, *bulk.Warning) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		w := warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"record %d: %s %q is not numeric; using 0", recordID, field, raw)
		return decimal.Zero, &w
	}
	return d, nil
}

// parseQuantity parses a stock quantity. Negative quantities are clamped to zero with a warning.
func parseQuantity(recordID int64, raw string) (decimal.Decimal, []bulk.Warning, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil, nil
	}
	q, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, nil, inPhase(bulk.PhaseMapping,
			classified(bulk.ClassMalformedData, "record %d: quantity %q is not numeric", recordID, raw))
	}
	if q.IsNegative() {
		return decimal.Zero, []bulk.Warning{warning(bulk.PhaseMapping, bulk.ClassMalformedData,
			"record %d: negative quantity %s stored as 0", recordID, q.String())}, nil
	}
	return q, nil, nil
}

func appendWarning(warnings []bulk.Warning, w *bulk.Warning) []bulk.Warning {
	if w == nil {
		return warnings
	}
	return append(warnings, *w)
}
