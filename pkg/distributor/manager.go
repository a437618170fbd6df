// Package distributor moves canonical records into the normalized companies and
// charges tables and maintains the daily reporting view over them.
package distributor

import (
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/txn-ingress/pkg/connector"
	"github.com/David-Botos/txn-ingress/pkg/model"
	"github.com/David-Botos/txn-ingress/pkg/report"
)

// DefaultUnknownCompanyName is stored for a company that never carried a name
const DefaultUnknownCompanyName = "Unknown Company"

// Config controls a Manager
type Config struct {
	// Statuses counted by the daily reporting view
	SettledStatuses []model.Status
	// Error descriptors kept per distribution
	MaxErrorSamples int
	// Name stored for companies without one
	UnknownCompanyName string
}

// DefaultConfig returns the default distributor configuration
func DefaultConfig() Config {
	return Config{
		SettledStatuses:    append([]model.Status(nil), model.DefaultSettledStatuses...),
		MaxErrorSamples:    report.DefaultMaxSamples,
		UnknownCompanyName: DefaultUnknownCompanyName,
	}
}

// Manager owns the normalized tables and the reporting view
type Manager struct {
	conn   connector.DatabaseConnector
	cfg    Config
	logger *zap.Logger

	companies string
	charges   string
	view      string

	now func() time.Time
}

// NewManager creates a distribution manager
func NewManager(conn connector.DatabaseConnector, cfg Config, logger *zap.Logger) *Manager {
	defaults := DefaultConfig()
	if len(cfg.SettledStatuses) == 0 {
		cfg.SettledStatuses = defaults.SettledStatuses
	}
	if cfg.UnknownCompanyName == "" {
		cfg.UnknownCompanyName = defaults.UnknownCompanyName
	}
	if cfg.MaxErrorSamples <= 0 {
		cfg.MaxErrorSamples = defaults.MaxErrorSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialect := conn.Dialect()
	return &Manager{
		conn:      conn,
		cfg:       cfg,
		logger:    logger.Named("distributor"),
		companies: dialect.Table(model.NormalizedSchema, model.CompaniesTable),
		charges:   dialect.Table(model.NormalizedSchema, model.ChargesTable),
		view:      dialect.Table(model.NormalizedSchema, model.DailySummaryView),
		now:       time.Now,
	}
}
