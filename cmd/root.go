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

	"github.com/joescharf/voicecal/internal/output"
	"github.com/joescharf/voicecal/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "voicecal",
	Short: "Voice-to-action scheduling assistant",
	Long: `voicecal turns spoken requests into calendar events, tasks and reminders.
It asks clarifying questions when a request is incomplete, checks your
calendars for conflicts, books after confirmation and can undo the last action.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closePipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/voicecal/config.yaml)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Speaker id (default from config)")
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VOICECAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers a default for every config key, rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "voicecal.db"))
	viper.SetDefault("user", defaultUser())
	viper.SetDefault("timezone", "Local")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("extraction.timeout", "20s")
	viper.SetDefault("extraction.max_options", 3)

	viper.SetDefault("conversation.ttl", "10m")
	viper.SetDefault("conversation.confidence_threshold", 0.7)
	viper.SetDefault("conversation.retention", "720h")
	viper.SetDefault("conversation.sweep_interval", "1m")
	viper.SetDefault("speech.min_confidence", 0.5)

	viper.SetDefault("conflict.provider_timeout", "5s")
	viper.SetDefault("conflict.aggregate_timeout", "8s")
	viper.SetDefault("conflict.horizon", "336h")
	viper.SetDefault("conflict.step", "30m")
	viper.SetDefault("conflict.max_suggestions", 3)
	viper.SetDefault("conflict.min_buffer", "10m")
	viper.SetDefault("conflict.work_start", "09:00")
	viper.SetDefault("conflict.work_end", "18:00")

	viper.SetDefault("events.default_duration", "1h")
	viper.SetDefault("execution.timeout", "15s")
	viper.SetDefault("execution.max_retries", 3)

	viper.SetDefault("default_calendar", "")
	viper.SetDefault("serve.addr", "127.0.0.1:8765")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	logger = newLogger(os.Stderr)
	slog.SetDefault(logger)

	// Store and runtime are opened lazily, only when a command needs them.
	// This allows config/version commands to run without a db.
}

// newLogger builds the slog logger described by log.level and log.format.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
