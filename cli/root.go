// Package cli provides the command-line interface of the app server: the
// `serve` command running the full ingest stack (HTTP + gRPC + workers) and
// the `workers` command running the consumer fleet alone.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tracefold/app-server/common"
	"github.com/tracefold/app-server/config"
	"github.com/tracefold/app-server/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "app-server",
	Short:   "Telemetry ingestion backend",
	Long:    "app-server ingests OpenTelemetry traces, logs, browser-session events, and evaluation datapoints, persists them durably, and serves realtime and analytical reads.",
	Version: version.Version,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .app-server.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workersCmd)
}

// initConfig loads an optional config file and maps its keys onto
// environment variables so that the config package sees one source.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".app-server")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		for _, key := range viper.AllKeys() {
			envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			if os.Getenv(envKey) == "" {
				_ = os.Setenv(envKey, viper.GetString(key))
			}
		}
	}
}

// newLogger builds the process logger from service configuration.
func newLogger(serviceCfg config.ServiceConfig) *logrus.Logger {
	return common.NewLogger(common.LoggerConfig{
		Level:      common.LogLevel(serviceCfg.LogLevel),
		Format:     serviceCfg.LogFormat,
		Service:    "app-server",
		TimeFormat: time.RFC3339,
	})
}

// initSentry enables error capture when a DSN is configured. Returns a flush
// function for shutdown.
func initSentry(serviceCfg config.ServiceConfig, logger *logrus.Logger) func() {
	if serviceCfg.SentryDSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         serviceCfg.SentryDSN,
		Environment: serviceCfg.Environment,
		Release:     version.Version,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to initialize sentry")
		return func() {}
	}
	logger.Info("sentry error capture enabled")
	return func() { sentry.Flush(2 * time.Second) }
}
