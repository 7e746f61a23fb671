// Package root contains the root command for the application
package root

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tuleva/camt-reconciler/internal/config"
	"tuleva/camt-reconciler/internal/container"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/report"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string
	Input      string
	Output     string
}

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "camt-reconciler",
		Short: "Reconcile ISO 20022 bank statements against expected pension contributions.",
		Long: `camt-reconciler ingests camt.052 intra-day reports and camt.053 statements,
matches their credit entries against expected pension contributions and
records every outcome exactly once. It can also request statements with camt.060.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to camt-reconciler!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile, err := config.LoadEnv(); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}

			cfg, err := config.Load(SharedFlags.ConfigFile)
			if err != nil {
				return err
			}
			if SharedFlags.LogLevel != "" {
				cfg.Log.Level = SharedFlags.LogLevel
			}
			if SharedFlags.LogFormat != "" {
				cfg.Log.Format = SharedFlags.LogFormat
			}

			Log = config.ConfigureLoggingFromConfig(cfg)
			Log.SetOutput(cmd.ErrOrStderr())

			state.mu.Lock()
			state.config = cfg
			state.mu.Unlock()
			return nil
		},
	}

	// SharedFlags are accessible to all commands
	SharedFlags = CommonFlags{}

	initOnce sync.Once

	state struct {
		mu        sync.Mutex
		config    *config.Config
		container *container.Container
	}
)

// Init initializes the root command and all flags
func Init() {
	initOnce.Do(func() {
		Cmd.PersistentFlags().StringVarP(&SharedFlags.ConfigFile, "config", "c", "", "Config file (default: ./config.yaml or $HOME/.camt-reconciler/config.yaml)")
		Cmd.PersistentFlags().StringVar(&SharedFlags.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
		Cmd.PersistentFlags().StringVar(&SharedFlags.LogFormat, "log-format", "", "Log format (text, json)")
		Cmd.PersistentFlags().StringVarP(&SharedFlags.Input, "input", "i", "", "Input file")
		Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Output file (default: stdout)")
	})
}

// Execute runs the root command and releases the container afterwards
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx and releases the container afterwards
func ExecuteContext(ctx context.Context) error {
	defer Shutdown()
	return Cmd.ExecuteContext(ctx)
}

// GetConfig returns the configuration loaded for the current command
func GetConfig() *config.Config {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.config
}

// GetLogrusAdapter returns the command logger behind the logging.Logger interface
func GetLogrusAdapter() logging.Logger {
	return logging.NewLogrusAdapterFromLogger(Log)
}

// GetContainer returns the application container, building it on first use.
// Commands that do not touch the database or the message source never build it.
func GetContainer() (*container.Container, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.container != nil {
		return state.container, nil
	}
	if state.config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	c, err := container.NewContainerWithLogger(state.config, logging.NewLogrusAdapterFromLogger(Log))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	state.container = c
	return c, nil
}

// Shutdown closes the container if one was built and forgets the loaded config
func Shutdown() {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.container != nil {
		if err := state.container.Close(); err != nil {
			Log.Warnf("Failed to close application: %v", err)
		}
		state.container = nil
	}
	state.config = nil
}

// WithOutput calls write with the --output file, or with the command's
// standard output when no file was given.
func WithOutput(cmd *cobra.Command, gen *report.Generator, write func(io.Writer) error) error {
	if SharedFlags.Output == "" {
		return write(cmd.OutOrStdout())
	}
	return gen.WriteFile(SharedFlags.Output, write)
}
