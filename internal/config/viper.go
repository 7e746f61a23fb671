// Package config provides Viper-based hierarchical configuration management
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for request.time_zone on minimal hosts

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"tuleva/camt-reconciler/internal/persistence"
	"tuleva/camt-reconciler/internal/textutils"
)

// EnvPrefix prefixes every environment variable read by the application
const EnvPrefix = "RECON"

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Database struct {
		Driver string `mapstructure:"driver" yaml:"driver"`
		DSN    string `mapstructure:"dsn" yaml:"-"` // may carry credentials
		Debug  bool   `mapstructure:"debug" yaml:"debug"`
	} `mapstructure:"database" yaml:"database"`

	Reconciliation struct {
		LockName         string        `mapstructure:"lock_name" yaml:"lock_name"`
		InstanceID       string        `mapstructure:"instance_id" yaml:"instance_id"`
		LeaseDuration    time.Duration `mapstructure:"lease_duration" yaml:"lease_duration"`
		RenewInterval    time.Duration `mapstructure:"renew_interval" yaml:"renew_interval"`
		Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
		Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
		OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	} `mapstructure:"reconciliation" yaml:"reconciliation"`

	Matching struct {
		AmountTolerance   string   `mapstructure:"amount_tolerance" yaml:"amount_tolerance"`
		ReferencePatterns []string `mapstructure:"reference_patterns" yaml:"reference_patterns"`
		SupportedVersions []string `mapstructure:"supported_versions" yaml:"supported_versions"`
	} `mapstructure:"matching" yaml:"matching"`

	Source struct {
		Directory            string        `mapstructure:"directory" yaml:"directory"`
		RetryMaxAttempts     int           `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
		RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
		RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
	} `mapstructure:"source" yaml:"source"`

	Contributions struct {
		File string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"contributions" yaml:"contributions"`

	Request struct {
		AccountIBAN string `mapstructure:"account_iban" yaml:"account_iban"`
		TimeZone    string `mapstructure:"time_zone" yaml:"time_zone"`
	} `mapstructure:"request" yaml:"request"`

	Report struct {
		Format    string `mapstructure:"format" yaml:"format"`
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"report" yaml:"report"`
}

// AmountTolerance returns the configured tolerance as a decimal
func (c *Config) AmountTolerance() decimal.Decimal {
	d, err := decimal.NewFromString(c.Matching.AmountTolerance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Location returns the time zone statement requests are expressed in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Request.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Delimiter returns the CSV delimiter rune
func (c *Config) Delimiter() rune {
	r := []rune(c.Report.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}

// InitializeConfig loads the configuration from the default locations
func InitializeConfig() (*Config, error) {
	return Load("")
}

// Load initializes Viper configuration with hierarchical loading:
// defaults, then config file, then RECON_ environment variables. A non-empty
// configFile replaces the search in the default locations.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.camt-reconciler")
		v.AddConfigPath(".camt-reconciler")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Database defaults
	v.SetDefault("database.driver", persistence.DriverSQLite)
	v.SetDefault("database.dsn", "camt-reconciler.db")
	v.SetDefault("database.debug", false)

	// Reconciliation defaults
	v.SetDefault("reconciliation.lock_name", "camt-reconciliation")
	v.SetDefault("reconciliation.instance_id", "")
	v.SetDefault("reconciliation.lease_duration", 5*time.Minute)
	v.SetDefault("reconciliation.renew_interval", 0)
	v.SetDefault("reconciliation.concurrency", 4)
	v.SetDefault("reconciliation.interval", time.Minute)
	v.SetDefault("reconciliation.operation_timeout", 30*time.Second)

	// Matching defaults
	v.SetDefault("matching.amount_tolerance", "0.05")
	v.SetDefault("matching.reference_patterns", textutils.DefaultReferencePatterns)
	v.SetDefault("matching.supported_versions", []string{"001.02"})

	// Source defaults
	v.SetDefault("source.directory", "data/messages")
	v.SetDefault("source.retry_max_attempts", 5)
	v.SetDefault("source.retry_initial_interval", 500*time.Millisecond)
	v.SetDefault("source.retry_max_interval", 30*time.Second)

	// Contribution store defaults
	v.SetDefault("contributions.file", "contributions.yaml")

	// Statement request defaults
	v.SetDefault("request.account_iban", "")
	v.SetDefault("request.time_zone", "Europe/Tallinn")

	// Report defaults
	v.SetDefault("report.format", "text")
	v.SetDefault("report.delimiter", ",")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	var errs []error

	// Validate log level
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %s", config.Log.Level))
	}

	// Validate log format
	if config.Log.Format != "text" && config.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format))
	}

	switch strings.ToLower(config.Database.Driver) {
	case persistence.DriverPostgres, persistence.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be '%s' or '%s', got: %s",
			persistence.DriverPostgres, persistence.DriverSQLite, config.Database.Driver))
	}
	if config.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	r := config.Reconciliation
	if r.LockName == "" {
		errs = append(errs, errors.New("reconciliation.lock_name is required"))
	}
	if r.LeaseDuration < time.Second {
		errs = append(errs, fmt.Errorf("reconciliation.lease_duration must be at least 1s, got: %s", r.LeaseDuration))
	}
	if r.RenewInterval < 0 || (r.RenewInterval > 0 && r.RenewInterval >= r.LeaseDuration) {
		errs = append(errs, fmt.Errorf("reconciliation.renew_interval must be shorter than the lease, got: %s", r.RenewInterval))
	}
	if r.Concurrency < 1 || r.Concurrency > 64 {
		errs = append(errs, fmt.Errorf("reconciliation.concurrency must be between 1 and 64, got: %d", r.Concurrency))
	}
	if r.Interval <= 0 {
		errs = append(errs, fmt.Errorf("reconciliation.interval must be positive, got: %s", r.Interval))
	}
	if r.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("reconciliation.operation_timeout must be positive, got: %s", r.OperationTimeout))
	}

	tolerance, err := decimal.NewFromString(config.Matching.AmountTolerance)
	if err != nil || tolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("matching.amount_tolerance must be a non-negative decimal, got: %s", config.Matching.AmountTolerance))
	}
	if _, err := textutils.NewExtractor(config.Matching.ReferencePatterns); err != nil {
		errs = append(errs, fmt.Errorf("matching.reference_patterns: %w", err))
	}
	if len(config.Matching.SupportedVersions) == 0 {
		errs = append(errs, errors.New("matching.supported_versions must not be empty"))
	}

	if config.Source.Directory == "" {
		errs = append(errs, errors.New("source.directory is required"))
	}
	if config.Source.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("source.retry_max_attempts must be at least 1, got: %d", config.Source.RetryMaxAttempts))
	}

	if config.Contributions.File == "" {
		errs = append(errs, errors.New("contributions.file is required"))
	}

	if _, err := time.LoadLocation(config.Request.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid request.time_zone: %s", config.Request.TimeZone))
	}

	switch config.Report.Format {
	case "text", "csv", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid report format: %s (must be 'text', 'csv' or 'json')", config.Report.Format))
	}
	if len([]rune(config.Report.Delimiter)) != 1 {
		errs = append(errs, fmt.Errorf("CSV delimiter must be a single character, got: %s", config.Report.Delimiter))
	}

	return errors.Join(errs...)
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	// Parse and set log level
	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Configure log format
	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
