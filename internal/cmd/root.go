// Package cmd implements the metfetch command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stormpetrel/metfetch/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "metfetch",
	Short: "Chunked parallel launcher for meteorological data retrieval",
	Long: `metfetch splits a retrieval date range into fixed-size sub-periods and
launches the external retrieval program once per sub-period, running up to
N retrievals concurrently with per-attempt timeout and retry.

Completed sub-periods leave a marker file behind, so re-running the same
campaign skips work that already finished. Delete a marker to force a
re-run of that sub-period.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return observability.Init(
			viper.GetString("logging.level"),
			viper.GetString("logging.file"),
		)
	},
}

var cfgFile string

// versionInfo holds build-time version metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// status server.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.metfetch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file (rotated)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// setDefaults seeds viper with the tool's defaults.
func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("workers", 3)
}

func initConfig() error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".metfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("METFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		// No config file is fine; defaults, env, and flags carry it.
	}
	return nil
}

// AppConfig is the tool-level configuration resolved from defaults, config
// file, environment, and flags.
type AppConfig struct {
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`
	Workers int `mapstructure:"workers"`
}

// loadAppConfig unmarshals the resolved viper state into a typed struct.
func loadAppConfig() (*AppConfig, error) {
	var cfg AppConfig
	err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ExitCodeError carries a process exit code alongside the error.
type ExitCodeError struct {
	Code int
	Msg  string
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (exit code %d)", e.Msg, e.Err, e.Code)
	}
	return fmt.Sprintf("%s (exit code %d)", e.Msg, e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// exitError creates an error that causes the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitCodeError{Code: code, Msg: message, Err: err}
}

// Execute runs the command tree and returns the process exit code. The
// command context cancels on SIGINT/SIGTERM so an in-flight campaign
// stops launching new jobs and records the cancellation.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		observability.CLILogger.Debug("Command failed", zap.Error(err))

		var coded *ExitCodeError
		if errors.As(err, &coded) {
			return coded.Code
		}
		return 1
	}
	return 0
}
