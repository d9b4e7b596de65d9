package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wagiedev/daemonkit"
	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/supervisor"
	"github.com/wagiedev/daemonkit/internal/tracing"
)

const envPrefix = "DAEMONKIT"

// Config is the CLI configuration, read from flags, DAEMONKIT_* variables,
// and an optional YAML file, in that order of precedence.
type Config struct {
	Dev            bool           `mapstructure:"dev"`
	Flavor         string         `mapstructure:"flavor"`
	Branch         string         `mapstructure:"branch"`
	Executable     string         `mapstructure:"executable"`
	ResourceDir    string         `mapstructure:"resource_dir"`
	BaseDir        string         `mapstructure:"base_dir"`
	Socket         string         `mapstructure:"socket"`
	Database       string         `mapstructure:"database"`
	ExternalPort   uint16         `mapstructure:"external_port"`
	External       bool           `mapstructure:"external"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	MaxRetries     int            `mapstructure:"max_retries"`
	LogLevel       string         `mapstructure:"log_level"`
	LogFormat      string         `mapstructure:"log_format"`
	Tracing        tracing.Config `mapstructure:"tracing"`
}

// app holds per-invocation state shared by the subcommands.
type app struct {
	out    io.Writer
	errOut io.Writer

	v       *viper.Viper
	cfgFile string
	cfg     Config

	log    *slog.Logger
	cmds   *daemonkit.Commands
	tracer *tracing.Provider
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, v: viper.New()}
}

func (a *app) rootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "daemonkit",
		Short:   "Supervise and talk to the session daemon",
		Long:    `daemonkit launches the session daemon, reports its state, and drives sessions and approvals over its socket.`,
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ~/.config/daemonkit/config.yaml)")
	flags.Bool("dev", false, "use the development daemon build and branch-scoped state")
	flags.String("flavor", string(config.FlavorStable), "packaged release channel: stable or nightly")
	flags.String("branch", "", "identity tag override")
	flags.String("executable", "", "explicit daemon binary path")
	flags.String("resource-dir", "", "packaged resource directory holding bin/hld")
	flags.String("base-dir", "", "directory holding socket, database, and state files")
	flags.String("socket", "", "daemon socket path")
	flags.String("database", "", "daemon database path")
	flags.Uint16("external-port", 0, "HTTP port of an already running daemon")
	flags.Bool("external", false, "never spawn; use the daemon at --external-port")
	flags.Duration("request-timeout", 0, "socket connect and request timeout")
	flags.Int("max-retries", 0, "additional socket connect attempts")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")

	for _, name := range []string{
		"dev", "flavor", "branch", "executable", "resource-dir", "base-dir", "socket", "database",
		"external-port", "external", "request-timeout", "max-retries", "log-level", "log-format",
	} {
		_ = a.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	root.AddCommand(
		a.startCmd(),
		a.statusCmd(),
		a.sessionsCmd(),
		a.approvalsCmd(),
		a.decideCmd(),
		a.subscribeCmd(),
		a.mcpCmd(version),
	)

	return root
}

func (a *app) init(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	log, err := newLogger(a.errOut, a.cfg.LogLevel, a.cfg.LogFormat)
	if err != nil {
		return err
	}

	a.log = log

	tracingCfg := a.cfg.Tracing
	tracingCfg.Writer = a.errOut

	a.tracer, err = tracing.NewProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	a.cmds = daemonkit.New(a.options()...)

	return nil
}

func (a *app) loadConfig() error {
	v := a.v

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", tracing.ExporterNone)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "daemonkit")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "daemonkit"))
		}

		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || a.cfgFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	return nil
}

func (a *app) options() []daemonkit.Option {
	cfg := a.cfg

	opts := []daemonkit.Option{
		daemonkit.WithLogger(a.log),
		daemonkit.WithDevMode(cfg.Dev),
		daemonkit.WithFlavor(config.BuildFlavor(cfg.Flavor)),
		daemonkit.WithBranchOverride(cfg.Branch),
		daemonkit.WithExecutablePath(cfg.Executable),
		daemonkit.WithResourceDir(cfg.ResourceDir),
		daemonkit.WithBaseDir(cfg.BaseDir),
		daemonkit.WithDatabasePath(cfg.Database),
		daemonkit.WithRequestTimeout(cfg.RequestTimeout),
		daemonkit.WithMaxRetries(cfg.MaxRetries),
	}

	if cfg.Socket != "" {
		opts = append(opts, daemonkit.WithSocketPath(cfg.Socket))
	}

	switch {
	case cfg.External:
		opts = append(opts, daemonkit.WithExternalDaemon(cfg.ExternalPort))
	case cfg.ExternalPort != 0:
		opts = append(opts, daemonkit.WithExternalPort(cfg.ExternalPort))
	}

	// Daemon environment variables fill whatever flags and config left unset.
	return append(opts, daemonkit.WithEnvironment())
}

func (a *app) close() {
	if a.cmds != nil {
		_ = a.cmds.Close()
	}

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = a.tracer.Shutdown(ctx)
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// newLogger builds the CLI logger. Level "trace" enables the daemon's
// trace-level stderr lines.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		lvl = supervisor.LevelTrace
	case "":
		lvl = slog.LevelInfo
	default:
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
