package importapp

import (
	"time"

	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/infrastructure/config"
)

// RunLockKey is the lock key shared by every entity kind so runs never interleave
const RunLockKey = "import:run"

// BreakerSettings configures the error-rate circuit breaker of one entity kind
type BreakerSettings struct {
	MinSample int
	Threshold float64
}

// Trips reports whether the breaker fires for errors out of processed records
func (b BreakerSettings) Trips(errors, processed int) bool {
	if processed == 0 || processed < b.MinSample || b.Threshold <= 0 {
		return false
	}
	return float64(errors)/float64(processed) > b.Threshold
}

// Settings holds the tunables of the import pipeline
type Settings struct {
	MaxRecordsPerRun       int
	PageSize               int
	ReservedRootIDs        []int64
	MaxDepth               int
	ProgressEvery          int
	EarlyWarningRatio      float64
	MaxErrorSamples        int
	CommitRetryAttempts    int
	CommitRetryInitial     time.Duration
	CommitRetryMultiplier  float64
	MirrorPublicCategories bool
	MirrorImages           bool
	PublicCategoryModels   []string
	FallbackCategoryName   string
	LockTTL                time.Duration
	Breakers               map[bulk.EntityKind]BreakerSettings
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		MaxRecordsPerRun:       20,
		PageSize:               20,
		ReservedRootIDs:        []int64{1, 2},
		MaxDepth:               20,
		ProgressEvery:          10,
		EarlyWarningRatio:      0.2,
		MaxErrorSamples:        20,
		CommitRetryAttempts:    3,
		CommitRetryInitial:     time.Second,
		CommitRetryMultiplier:  2,
		MirrorPublicCategories: true,
		PublicCategoryModels:   []string{"product_public_categories", "website_product_categories", "public_categories"},
		FallbackCategoryName:   "All",
		LockTTL:                30 * time.Minute,
		Breakers: map[bulk.EntityKind]BreakerSettings{
			bulk.EntityCategories: {MinSample: 10, Threshold: 0.30},
			bulk.EntityProducts:   {MinSample: 20, Threshold: 0.25},
			bulk.EntityStock:      {MinSample: 20, Threshold: 0.25},
			bulk.EntityCustomers:  {MinSample: 10, Threshold: 0.30},
		},
	}
}

// SettingsFromConfig converts the loaded import configuration
func SettingsFromConfig(cfg config.ImportConfig) Settings {
	s := Settings{
		MaxRecordsPerRun:       cfg.MaxRecordsPerRun,
		PageSize:               cfg.PageSize,
		ReservedRootIDs:        cfg.ReservedRootIDs,
		MaxDepth:               cfg.MaxDepth,
		ProgressEvery:          cfg.ProgressEvery,
		EarlyWarningRatio:      cfg.EarlyWarningRatio,
		MaxErrorSamples:        cfg.MaxErrorSamples,
		CommitRetryAttempts:    cfg.CommitRetryAttempts,
		CommitRetryInitial:     cfg.CommitRetryInitial,
		CommitRetryMultiplier:  cfg.CommitRetryMultiplier,
		MirrorPublicCategories: cfg.MirrorPublicCategories,
		MirrorImages:           cfg.MirrorImages,
		PublicCategoryModels:   cfg.PublicCategoryModels,
		FallbackCategoryName:   cfg.FallbackCategoryName,
		LockTTL:                cfg.LockTTL,
		Breakers:               make(map[bulk.EntityKind]BreakerSettings, len(bulk.AllKinds())),
	}
	for _, kind := range bulk.AllKinds() {
		b := cfg.Breaker(string(kind))
		s.Breakers[kind] = BreakerSettings{MinSample: b.MinSample, Threshold: b.Threshold}
	}
	return s
}

// Breaker returns the breaker settings of kind
func (s Settings) Breaker(kind bulk.EntityKind) BreakerSettings {
	if b, ok := s.Breakers[kind]; ok {
		return b
	}
	return BreakerSettings{MinSample: 20, Threshold: 0.25}
}

func (s Settings) reservedRoots() map[int64]bool {
	roots := make(map[int64]bool, len(s.ReservedRootIDs))
	for _, id := range s.ReservedRootIDs {
		roots[id] = true
	}
	return roots
}
