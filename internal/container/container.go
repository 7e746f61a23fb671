// Package container provides dependency injection for the reconciler.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"tuleva/camt-reconciler/internal/camtparser"
	"tuleva/camt-reconciler/internal/config"
	"tuleva/camt-reconciler/internal/coordinator"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/matcher"
	"tuleva/camt-reconciler/internal/normalizer"
	"tuleva/camt-reconciler/internal/persistence"
	"tuleva/camt-reconciler/internal/report"
	"tuleva/camt-reconciler/internal/source"
	"tuleva/camt-reconciler/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation - all fields are private and can only
// be accessed through getter methods.
type Container struct {
	logger logging.Logger
	config *config.Config

	db            *gorm.DB
	repository    *persistence.Repository
	contributions *store.YAMLStore
	source        *source.RetryingSource
	codec         *camtparser.Codec
	normalizer    *normalizer.Normalizer
	coordinator   *coordinator.Coordinator
	reports       *report.Generator
}

// NewContainer creates and wires all application dependencies.
// The logger is built from cfg.Log.
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	return NewContainerWithLogger(cfg, logging.NewLogrusAdapterFromLogger(config.ConfigureLoggingFromConfig(cfg)))
}

// NewContainerWithLogger wires the dependencies around an existing logger
func NewContainerWithLogger(cfg *config.Config, logger logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		return nil, err
	}
	closeOnError := func(err error) (*Container, error) {
		if closeErr := persistence.Close(db); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close database")
		}
		return nil, err
	}

	repository := persistence.NewRepository(db)
	locks := persistence.NewGormLocker(db, instanceID(cfg))
	contributions := store.NewYAMLStore(cfg.Contributions.File, logger)

	dir, err := source.NewDirectory(cfg.Source.Directory, logger)
	if err != nil {
		return closeOnError(fmt.Errorf("failed to open message directory: %w", err))
	}
	src := source.NewRetryingSource(dir, source.RetryConfig{
		MaxAttempts:     cfg.Source.RetryMaxAttempts,
		InitialInterval: cfg.Source.RetryInitialInterval,
		MaxInterval:     cfg.Source.RetryMaxInterval,
	}, logger)

	codec := camtparser.NewCodec(logger, cfg.Matching.SupportedVersions)
	norm, err := normalizer.NewWithPatterns(cfg.Matching.ReferencePatterns)
	if err != nil {
		return closeOnError(err)
	}

	coord, err := coordinator.New(coordinator.Config{
		LockName:         cfg.Reconciliation.LockName,
		LeaseDuration:    cfg.Reconciliation.LeaseDuration,
		RenewInterval:    cfg.Reconciliation.RenewInterval,
		Concurrency:      cfg.Reconciliation.Concurrency,
		OperationTimeout: cfg.Reconciliation.OperationTimeout,
		Matching:         matcher.Config{AmountTolerance: cfg.AmountTolerance()},
	}, coordinator.Dependencies{
		Codec:         codec,
		Normalizer:    norm,
		Ledger:        repository,
		Contributions: contributions,
		Source:        src,
		Locks:         locks,
		Logger:        logger,
	})
	if err != nil {
		return closeOnError(err)
	}

	logger.Info("Container initialized successfully",
		logging.F("database_driver", cfg.Database.Driver),
		logging.F("source_directory", dir.Root()),
		logging.F(logging.FieldLockName, cfg.Reconciliation.LockName))

	return &Container{
		logger:        logger,
		config:        cfg,
		db:            db,
		repository:    repository,
		contributions: contributions,
		source:        src,
		codec:         codec,
		normalizer:    norm,
		coordinator:   coord,
		reports:       report.NewGenerator(logger, cfg.Delimiter()),
	}, nil
}

// instanceID identifies this process as a lock owner
func instanceID(cfg *config.Config) string {
	if cfg.Reconciliation.InstanceID != "" {
		return cfg.Reconciliation.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetRepository returns the persistence repository
func (c *Container) GetRepository() *persistence.Repository {
	return c.repository
}

// GetContributionStore returns the expected contribution store
func (c *Container) GetContributionStore() *store.YAMLStore {
	return c.contributions
}

// GetSource returns the retrying message source
func (c *Container) GetSource() source.Source {
	return c.source
}

// GetCodec returns the camt codec
func (c *Container) GetCodec() *camtparser.Codec {
	return c.codec
}

// GetNormalizer returns the entry normalizer
func (c *Container) GetNormalizer() *normalizer.Normalizer {
	return c.normalizer
}

// GetCoordinator returns the reconciliation coordinator
func (c *Container) GetCoordinator() *coordinator.Coordinator {
	return c.coordinator
}

// GetReportGenerator returns the report generator
func (c *Container) GetReportGenerator() *report.Generator {
	return c.reports
}

// Close performs cleanup of container resources.
func (c *Container) Close() error {
	if err := persistence.Close(c.db); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Container closed")
	return nil
}
