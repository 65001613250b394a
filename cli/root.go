// Package cli provides the command-line entry point for the dispatch
// engine: configuration loading, engine construction, and the HTTP
// server lifecycle (spec §6 External Interfaces).
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dispatch.evalgo.org/api"
	"dispatch.evalgo.org/config"
	"dispatch.evalgo.org/engine"
	dhttp "dispatch.evalgo.org/http"
	"dispatch.evalgo.org/otel"
)

// cfgFile holds the path to the configuration file specified via
// command-line flag.
var cfgFile string

// RootCmd is the dispatch engine's entry point. It loads configuration,
// wires the engine and its HTTP surface, and runs until a shutdown
// signal is received.
var RootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "unified message broker, task queue, job scheduler and workflow engine",
	Long: `dispatchd runs the dispatch engine: a single process exposing
a message broker, task queue, job scheduler, and workflow interpreter
behind one Producer/Consumer/Control/Introspection HTTP surface.`,
	RunE: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dispatch.yaml)")
	RootCmd.PersistentFlags().Int("port", 0, "HTTP server port")
	RootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("dispatch_auth.jwt_secret", RootCmd.PersistentFlags().Lookup("jwt-secret"))
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dispatch")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}

	// Flags bound above land in the process environment under the
	// DISPATCH_-prefixed names config.NewConfigLoader("DISPATCH") reads.
	if port := viper.GetInt("port"); port != 0 {
		os.Setenv("DISPATCH_PORT", fmt.Sprintf("%d", port))
	}
	if secret := viper.GetString("dispatch_auth.jwt_secret"); secret != "" {
		os.Setenv("DISPATCH_AUTH_JWT_SECRET", secret)
	}
	if level := viper.GetString("log_level"); level != "" {
		os.Setenv("DISPATCH_LOG_LEVEL", level)
	}
}

// runServer loads configuration, constructs the engine and its HTTP
// surface, and blocks until SIGINT/SIGTERM triggers a graceful
// shutdown.
func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewConfigLoader("DISPATCH").LoadAll()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log := newLogger(cfg.Service.LogLevel, cfg.Service.LogFormat)

	var provider *otel.Provider
	if cfg.Observability.TracingEnabled {
		provider = otel.Init(cfg.Service.Name, cfg.Service.Version)
	}

	reg := prometheus.NewRegistry()
	eng := engine.New(cfg, reg, log)
	eng.Start()
	defer eng.Stop()

	e := api.NewServer(cfg, eng)

	go func() {
		if err := dhttp.StartServer(e, dhttp.ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}); err != nil {
			log.WithError(err).Error("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")

	if err := dhttp.GracefulShutdown(e, cfg.Server.ShutdownTimeout); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}

	if provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("tracer provider shutdown failed")
		}
	}

	return nil
}

func newLogger(level, format string) *logrus.Entry {
	logger := logrus.New()
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logrus.NewEntry(logger)
}
