package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/output"
	"github.com/joescharf/issuetracker/internal/project"
	"github.com/joescharf/issuetracker/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "issuetracker",
	Short: "Issue tracker - per-project issues over a REST API",
	Long: `issuetracker stores issues per project and serves them over a small
REST API at /api/issues/{project}. The same operations are available
from the command line and as MCP tools.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issuetracker/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ISSUETRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "issuetracker.db"))
	viper.SetDefault("host", "")
	viper.SetDefault("port", 8080)
	viper.SetDefault("projects.allowed", []string{})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	ui.VerboseLog("Opening database %s", dbPath)
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getRegistry builds the project registry from projects.allowed.
func getRegistry() (*project.Registry, error) {
	registry, err := project.NewRegistry(viper.GetStringSlice("projects.allowed")...)
	if err != nil {
		return nil, fmt.Errorf("projects.allowed: %w", err)
	}
	return registry, nil
}

// getService builds the issue service on top of the shared store.
func getService() (*issues.Service, error) {
	registry, err := getRegistry()
	if err != nil {
		return nil, err
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return issues.NewService(s, registry), nil
}

// newLogger builds the server's structured logger from log.level and log.format.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := viper.GetString("log.format"); format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q (want text or json)", format)
	}
}
