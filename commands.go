package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/loader"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/metrics"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// shutdownTimeout leaves headroom inside a 30s termination grace period.
const shutdownTimeout = 25 * time.Second

const metricsNamespace = "firefly_mcp"

func (a *App) newServeCmd() *cobra.Command {
	var (
		stdio bool
		addr  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over streamable HTTP or stdio",
		Long: `Serve the tools over streamable HTTP (the default) or, with --stdio, to a
single MCP client on stdin/stdout.

The HTTP server also answers /health, /tools, /tools/{name} and /reload, and
/metrics when METRICS_ENABLED is set. In database mode the active document is
polled for changes every POLLING_INTERVAL seconds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cmd.Flags().Changed("http") {
				cfg.HTTPAddr = addr
			}
			cfg.LogConfiguration(logger)
			return a.serve(cmd.Context(), cfg, logger, stdio)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve a single client on stdin/stdout")
	cmd.Flags().StringVar(&addr, "http", "", "HTTP listen address (env "+server.EnvHTTPAddr+")")
	return cmd
}

func (a *App) serve(ctx context.Context, cfg *server.Config, logger *zap.Logger, stdio bool) error {
	src, err := openCatalogSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	catalog, err := src.loader.LoadCatalog(ctx, src.source)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metricsNamespace, logger)
	collector.SetCatalogSize(catalog.Len())

	resolver, closeResolver, err := newResolver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeResolver()

	srv := openapi2mcp.NewServer(catalog, resolver, logger,
		openapi2mcp.WithServerInfo(server.ServiceName, Version),
		openapi2mcp.WithExecutorOptions(
			openapi2mcp.WithClient(&http.Client{Timeout: cfg.RequestTimeout}),
			openapi2mcp.WithMetrics(collector),
		),
	)

	if stdio {
		ec := cfg.ResolveLocalExecutionContext(a.opts.tools, a.opts.preset, logger)
		logger.Info("serving stdio", zap.Strings("tags", ec.EnabledTags), zap.Bool("base_url_set", ec.BaseURL != ""))
		return srv.ServeStdio(ec)
	}

	reload := func(ctx context.Context) (int, error) {
		c, err := src.loader.LoadCatalog(ctx, src.source)
		if err != nil {
			return 0, err
		}
		srv.SetCatalog(c)
		collector.SetCatalogSize(c.Len())
		return c.Len(), nil
	}

	if cfg.PollingEnabled() {
		last, err := src.loader.Fingerprint(ctx)
		if err != nil {
			logger.Warn("failed to read initial fingerprint", zap.Error(err))
		}
		go src.loader.Poll(ctx, cfg.PollInterval, last, func(ctx context.Context) error {
			_, err := reload(ctx)
			return err
		})
	} else if cfg.DatabaseMode() {
		logger.Info("database polling disabled, use POST /reload to reload tools")
	}

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewMux(server.MuxOptions{
			Config:  cfg,
			Server:  srv,
			Reload:  reload,
			Metrics: collector,
			Version: Version,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("endpoints",
		zap.String("mcp", cfg.MCPURL()),
		zap.Strings("routes", []string{"GET /health", "GET /tools", "GET /tools/{name}", "POST /reload"}),
		zap.Bool("metrics", cfg.MetricsEnabled))
	return runHTTP(ctx, httpSrv, logger)
}

// runHTTP serves until ctx is done, then shuts down gracefully.
func runHTTP(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("server shut down gracefully")
		return nil
	}
}

func (a *App) newGenerateCmd() *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "generate [spec]",
		Short: "Generate the tool catalog artifact from an OpenAPI document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("spec", args[0]); err != nil {
					return err
				}
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.SpecSource == "" {
				return server.NewError(server.ErrorTypeValidation, "no OpenAPI document given",
					"pass a file or URL, --spec or "+server.EnvSpec)
			}
			cfg.CatalogFile = ""
			cfg, logger, err := a.setupConfig(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if !cmd.Flags().Changed("format") {
				format = formatFromPath(output)
			}
			return a.generate(cmd.Context(), cfg.SpecSource, output, format, logger)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func (a *App) generate(ctx context.Context, spec, output, format string, logger *zap.Logger) error {
	format = strings.ToLower(format)
	if format == "yml" {
		format = "yaml"
	}
	if format != "json" && format != "yaml" {
		return server.NewError(server.ErrorTypeValidation, "unknown artifact format", format)
	}

	doc, err := loader.New(logger).Load(ctx, spec)
	if err != nil {
		return err
	}
	catalog, err := openapi2mcp.BuildCatalog(doc.Doc, doc.Order, logger)
	if err != nil {
		return err
	}
	artifact := catalog.Artifact(doc.Title(), doc.Version())

	var w io.Writer = a.stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if format == "yaml" {
		err = artifact.WriteYAML(w)
	} else {
		err = artifact.WriteJSON(w)
	}
	if err != nil {
		return fmt.Errorf("failed to write tool catalog: %w", err)
	}
	logger.Info("tool catalog generated",
		zap.Int("tools", catalog.Len()), zap.String("output", output), zap.String("format", format))
	return nil
}

func (a *App) newToolsCmd() *cobra.Command {
	var (
		all     bool
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools selected by --tools or --preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			src, err := openCatalogSource(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer src.Close()
			catalog, err := src.loader.LoadCatalog(cmd.Context(), src.source)
			if err != nil {
				return err
			}

			tools := catalog.Tools()
			if !all {
				tools = catalog.Filter(cfg.ResolveLocalExecutionContext(a.opts.tools, a.opts.preset, logger).EnabledTags)
			}
			if summary {
				openapi2mcp.WriteToolSummary(a.stdout, tools)
				return nil
			}
			writeToolList(a.stdout, tools)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every tool regardless of tags")
	cmd.Flags().BoolVar(&summary, "summary", false, "print counts per tag and method instead")
	return cmd
}

func writeToolList(w io.Writer, tools []openapi2mcp.ToolDefinition) {
	for _, t := range tools {
		fmt.Fprintf(w, "%-40s %-6s %s\n", t.Name, strings.ToUpper(t.Method), t.PathTemplate)
	}
}

func (a *App) newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the tool presets and their tags",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range openapi2mcp.Presets() {
				tags := openapi2mcp.PresetTags(name, nil)
				fmt.Fprintf(a.stdout, "%-12s %s\n", name, strings.Join(tags, ", "))
			}
		},
	}
}
