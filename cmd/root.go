// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Thermoquad/agxmon/internal/logging"
	"github.com/Thermoquad/agxmon/pkg/agx"
)

var (
	configFile string
	logFormat  string
	logLevel   string

	// Shared by every command; the console debug command adjusts it at runtime
	level = &slog.LevelVar{}
)

var rootCmd = &cobra.Command{
	Use:   "agxmon",
	Short: "AGX tegrastats telemetry monitor",
	Long: `agxmon - A CLI tool for monitoring an NVIDIA AGX module over its
Socket.IO tegrastats feed.

Connects to ws://host:port/socket.io/?EIO=4&transport=websocket, keeps the
connection alive with fast retry and backoff, and maintains the latest
CPU/memory/temperature/power/GPU snapshot.

Configuration sources, highest priority first:
  Flags:       --host 10.10.99.99 --port 58090 [--ssl]
  Environment: AGXMON_SERVER_HOST, AGXMON_SERVER_PORT, ...
  File:        --config agxmon.yaml

For HTTP Basic authentication, the password is read from the AGXMON_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		level.Set(l)
		logger, err := logging.New(os.Stderr, level, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
}

// flagKeys maps persistent flags onto agx.Config keys
var flagKeys = map[string]string{
	"host":            "server_host",
	"port":            "server_port",
	"ssl":             "use_ssl",
	"no-ssl-verify":   "insecure_skip_verify",
	"username":        "username",
	"reconnect":       "reconnect_interval",
	"fast-retries":    "fast_retry_count",
	"fast-interval":   "fast_retry_interval",
	"heartbeat":       "heartbeat_timeout",
	"startup-delay":   "startup_delay",
	"max-frame-bytes": "max_frame_size",
}

func init() {
	defaults := agx.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text, json)")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Connection flags
	flags.StringP("host", "H", defaults.ServerHost, "AGX telemetry server host")
	flags.IntP("port", "P", defaults.ServerPort, "AGX telemetry server port")
	flags.Bool("ssl", defaults.UseSSL, "Use wss:// instead of ws://")
	flags.Bool("no-ssl-verify", defaults.InsecureSkipVerify, "Skip TLS certificate verification (wss:// only)")
	flags.String("username", defaults.Username, "Username for HTTP Basic auth")

	// Retry policy flags
	flags.Duration("reconnect", defaults.ReconnectInterval, "Wait between reconnects after the fast retries")
	flags.Int("fast-retries", defaults.FastRetryCount, "Number of fast retries")
	flags.Duration("fast-interval", defaults.FastRetryInterval, "Wait between fast retries")
	flags.Duration("heartbeat", defaults.HeartbeatTimeout, "Handshake and write timeout")
	flags.Duration("startup-delay", 0, "Delay before the first connect attempt")
	flags.Int("max-frame-bytes", defaults.MaxFrameSize, "Largest accepted frame")

	if err := bindConfigFlags(viper.GetViper(), flags); err != nil {
		panic(err)
	}
}

// bindConfigFlags binds every flag in flagKeys to its config key
func bindConfigFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s not defined", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

// LoadConfig merges defaults, the optional config file, AGXMON_* environment
// variables and flags into a validated monitor config
func LoadConfig() (agx.Config, error) {
	cfg, err := decodeConfig(viper.GetViper(), configFile)
	if err != nil {
		return agx.Config{}, err
	}

	if cfg.Username != "" && cfg.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return agx.Config{}, err
		}
		cfg.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return agx.Config{}, err
	}
	return cfg, nil
}

// decodeConfig applies defaults, environment and the optional file to v
// and decodes the result
func decodeConfig(v *viper.Viper, path string) (agx.Config, error) {
	defaults := agx.DefaultConfig()

	v.SetDefault("server_host", defaults.ServerHost)
	v.SetDefault("server_port", defaults.ServerPort)
	v.SetDefault("use_ssl", defaults.UseSSL)
	v.SetDefault("insecure_skip_verify", defaults.InsecureSkipVerify)
	v.SetDefault("reconnect_interval", defaults.ReconnectInterval)
	v.SetDefault("fast_retry_count", defaults.FastRetryCount)
	v.SetDefault("fast_retry_interval", defaults.FastRetryInterval)
	v.SetDefault("heartbeat_timeout", defaults.HeartbeatTimeout)
	v.SetDefault("task_stack_size", defaults.TaskStackSize)
	v.SetDefault("task_priority", defaults.TaskPriority)
	v.SetDefault("max_frame_size", defaults.MaxFrameSize)

	v.SetEnvPrefix("AGXMON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return agx.Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	var cfg agx.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return agx.Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	// The host program drives start-up explicitly
	cfg.AutoStart = false
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
