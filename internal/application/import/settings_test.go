package importapp

import (
	"testing"
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
)

func TestBreakerSettings_Trips(t *testing.T) {
	b := BreakerSettings{MinSample: 20, Threshold: 0.25}

	tests := []struct {
		name      string
		errors    int
		processed int
		want      bool
	}{
		{"nothing processed", 0, 0, false},
		{"below sample size", 19, 19, false},
		{"at threshold", 5, 20, false},
		{"above threshold", 6, 20, true},
		{"healthy run", 2, 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Trips(tt.errors, tt.processed))
		})
	}

	assert.False(t, BreakerSettings{MinSample: 1}.Trips(5, 5), "zero threshold disables the breaker")
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.ImportConfig{
		MaxRecordsPerRun:     50,
		PageSize:             25,
		ReservedRootIDs:      []int64{1, 2, 9},
		CommitRetryAttempts:  4,
		CommitRetryInitial:   500 * time.Millisecond,
		FallbackCategoryName: "Uncategorized",
		Breakers: map[string]config.BreakerConfig{
			"stock": {MinSample: 5, Threshold: 0.5},
		},
	}

	s := SettingsFromConfig(cfg)

	assert.Equal(t, 50, s.MaxRecordsPerRun)
	assert.Equal(t, 25, s.PageSize)
	assert.Equal(t, 4, s.CommitRetryAttempts)
	assert.Equal(t, "Uncategorized", s.FallbackCategoryName)
	assert.Equal(t, BreakerSettings{MinSample: 5, Threshold: 0.5}, s.Breaker(bulk.EntityStock))
	assert.Equal(t, map[int64]bool{1: true, 2: true, 9: true}, s.reservedRoots())
}

func TestDefaultSettings_Breakers(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, BreakerSettings{MinSample: 10, Threshold: 0.30}, s.Breaker(bulk.EntityCategories))
	assert.Equal(t, BreakerSettings{MinSample: 20, Threshold: 0.25}, s.Breaker(bulk.EntityProducts))
	assert.Equal(t, BreakerSettings{MinSample: 20, Threshold: 0.25}, s.Breaker("unknown"))
}
