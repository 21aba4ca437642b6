package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FLOWHOST"

// Config is the process configuration, read from flags, FLOWHOST_*
// variables and an optional config file, in that order of precedence.
type Config struct {
	Env                 string
	DataDir             string
	TmpDir              string
	HTTPAddr            string
	StateStore          string
	DotPath             string
	LogLevel            string
	LogFormat           string
	OperationWorkers    int
	CoordinationWorkers int
	Metrics             bool
	Tracing             bool
	ShutdownGrace       time.Duration
}

func setupFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config-file", "", "Path to a config file.")
	f.String("env", "", "Deployment environment name (required).")
	f.String("data-dir", "", "Directory holding manager state (required).")
	f.String("tmp-dir", "", "Scratch directory. Defaults to <data-dir>/tmp.")
	f.String("http-addr", ":8080", "Admin HTTP listen address.")
	f.String("state-store", "file", "State store implementation: file or sqlite.")
	f.String("dot-path", "dot", "Graphviz binary used to render images.")
	f.String("log-level", "info", "Log level: debug, info, warn or error.")
	f.String("log-format", "text", "Log format: text or json.")
	f.Int("operation-workers", 0, "Operation pool size. 0 picks a default.")
	f.Int("coordination-workers", 0, "Coordination pool size. 0 picks a default.")
	f.Bool("metrics", false, "Record OpenTelemetry metrics.")
	f.Bool("tracing", false, "Record OpenTelemetry spans.")
	f.Duration("shutdown-grace", 10*time.Second, "Time allowed for in-flight requests on shutdown.")
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}

	if file := v.GetString("config-file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Env:                 v.GetString("env"),
		DataDir:             v.GetString("data-dir"),
		TmpDir:              v.GetString("tmp-dir"),
		HTTPAddr:            v.GetString("http-addr"),
		StateStore:          v.GetString("state-store"),
		DotPath:             v.GetString("dot-path"),
		LogLevel:            v.GetString("log-level"),
		LogFormat:           v.GetString("log-format"),
		OperationWorkers:    v.GetInt("operation-workers"),
		CoordinationWorkers: v.GetInt("coordination-workers"),
		Metrics:             v.GetBool("metrics"),
		Tracing:             v.GetBool("tracing"),
		ShutdownGrace:       v.GetDuration("shutdown-grace"),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error
	if c.Env == "" {
		errs = append(errs, fmt.Errorf("%s_ENV is required", envPrefix))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s_DATA_DIR is required", envPrefix))
	} else if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	switch c.StateStore {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown state store %q", c.StateStore))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

func (c Config) newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)).With("env", c.Env)
	}
	return slog.New(slog.NewTextHandler(w, opts)).With("env", c.Env)
}
