// Command firefly-iii-mcp exposes the Firefly III API as MCP tools.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/cache"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/database"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/loader"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/logging"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/repository"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type globalOptions struct {
	configPath string
	spec       string
	catalog    string
	baseURL    string
	tools      string
	preset     string
	logLevel   string
	logFormat  string
}

// App is the firefly-iii-mcp command line.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	opts   globalOptions
}

// NewApp builds the command tree.
func NewApp() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "firefly-iii-mcp",
		Short: "Expose the Firefly III API as MCP tools",
		Long: `firefly-iii-mcp turns the Firefly III OpenAPI document into MCP tools and
serves them over stdio or streamable HTTP.

Tools are grouped by tag. Pick them with --tools (a comma-separated tag list)
or --preset; without either the default preset is served.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&app.opts.spec, "spec", "", "OpenAPI document file or URL (env "+server.EnvSpec+")")
	flags.StringVar(&app.opts.catalog, "catalog", "", "prebuilt tool catalog file or URL (env "+server.EnvCatalog+")")
	flags.StringVar(&app.opts.baseURL, "base-url", "", "Firefly III base URL (env "+server.EnvBaseURL+")")
	flags.StringVar(&app.opts.tools, "tools", "", "comma-separated tool tags (env "+server.EnvTools+")")
	flags.StringVar(&app.opts.preset, "preset", "", "tool preset (env "+server.EnvPreset+")")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "debug, info, warn or error (env "+server.EnvLogLevel+")")
	flags.StringVar(&app.opts.logFormat, "log-format", "", "json or console (env "+server.EnvLogFormat+")")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newServeCmd(),
		app.newGenerateCmd(),
		app.newToolsCmd(),
		app.newPresetsCmd(),
		app.newReplCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the command line until it finishes or a signal arrives.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the command line with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig layers flags over the file and environment configuration.
// A flag only counts when it was set on the command line.
func (a *App) loadConfig(cmd *cobra.Command) (*server.Config, error) {
	cfg, err := server.LoadConfig(a.opts.configPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("spec", &cfg.SpecSource, a.opts.spec)
	set("catalog", &cfg.CatalogFile, a.opts.catalog)
	set("base-url", &cfg.BaseURL, a.opts.baseURL)
	set("log-level", &cfg.Log.Level, a.opts.logLevel)
	set("log-format", &cfg.Log.Format, a.opts.logFormat)
	if flags.Changed("tools") || flags.Changed("preset") {
		cfg.Tools, cfg.Preset = a.opts.tools, a.opts.preset
	}
	// A configured catalog would shadow --spec.
	if flags.Changed("spec") && !flags.Changed("catalog") {
		cfg.CatalogFile = ""
	}
	return cfg, nil
}

// setup loads and validates the configuration and builds the logger.
func (a *App) setup(cmd *cobra.Command) (*server.Config, *zap.Logger, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return a.setupConfig(cfg)
}

func (a *App) setupConfig(cfg *server.Config) (*server.Config, *zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// catalogSource is an open tool source and the resources behind it.
type catalogSource struct {
	loader *loader.Loader
	source loader.Source
	db     *sql.DB
}

func (s *catalogSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openCatalogSource(ctx context.Context, cfg *server.Config, logger *zap.Logger) (*catalogSource, error) {
	src := &catalogSource{
		source: loader.Source{
			Catalog:  cfg.CatalogFile,
			Spec:     cfg.SpecSource,
			Database: cfg.DatabaseMode(),
		},
	}
	opts := []loader.Option{loader.WithHTTPClient(&http.Client{Timeout: loader.DefaultFetchTimeout})}
	if src.source.Database {
		db, err := database.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		src.db = db
		opts = append(opts, loader.WithStore(repository.NewDocumentRepository(db)))
	}
	src.loader = loader.New(logger, opts...)
	return src, nil
}

// newResolver builds the credential resolver. OAuth tokens are cached in
// Redis when REDIS_URL is set, in memory otherwise.
func newResolver(ctx context.Context, cfg *server.Config, logger *zap.Logger) (*auth.Resolver, func(), error) {
	opts := []auth.ResolverOption{
		auth.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	}
	closeFn := func() {}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, server.Wrap(err, server.ErrorTypeNetwork, "failed to connect to redis")
		}
		logger.Info("using redis token cache")
		opts = append(opts, auth.WithTokenCache(rc))
		closeFn = func() {
			if err := rc.Close(); err != nil {
				logger.Warn("failed to close redis", zap.Error(err))
			}
		}
	}
	return auth.NewResolver(auth.NewEnvCredentials(), logger, opts...), closeFn, nil
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "firefly-iii-mcp version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

func main() {
	if err := NewApp().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
