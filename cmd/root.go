// Package cmd implements the pdvd-enricher command line.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/ortelius/pdvd-enricher/config"
	"github.com/ortelius/pdvd-enricher/database"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

var rootCmd = &cobra.Command{
	Use:   "pdvd-enricher",
	Short: "GitHub repository context and security alert enrichment",
	Long: `pdvd-enricher classifies the repositories of a GitHub organization by business
criticality, mirrors their Dependabot, code scanning and secret scanning alerts into
findings, refreshes EPSS exploit scores and auto-triages the findings.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
	inMemory   bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (default $PDVD_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "use an in-process store instead of ArangoDB; nothing is persisted")
}

// env is what every command starts from.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
}

// setup loads and validates the configuration, then opens the store. Commands that talk to
// GitHub pass needGitHub so missing credentials fail before anything else happens.
func setup(ctx context.Context, needGitHub bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if needGitHub {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateTuning()
	}
	if err != nil {
		return nil, err
	}

	logger := util.InitLogger(cfg.LogLevel)
	if inMemory {
		logger.Warn("Using the in-memory store; results are discarded on exit")
		return &env{cfg: cfg, logger: logger, store: store.NewMemoryStore()}, nil
	}

	conn, err := database.InitializeDatabase(ctx, database.ConfigFromEnv(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: database.NewStore(conn)}, nil
}

// wire builds the components, authenticating against GitHub when the command needs it.
func (e *env) wire(ctx context.Context, needGitHub bool, opts services.Options) (*services.Services, error) {
	if needGitHub {
		return services.New(ctx, e.cfg, e.store, opts, e.logger)
	}
	return services.Build(e.cfg, e.store, nil, opts, e.logger), nil
}

// printYAML writes a stats value to the command output.
func printYAML(w io.Writer, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
