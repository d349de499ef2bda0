// Command spec-manager maintains the OpenAPI documents and tool catalogs
// stored in PostgreSQL for the database mode of firefly-iii-mcp.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/database"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/logging"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/models"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/repository"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/server"
)

// App is the spec-manager command line.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	databaseURL string
	logLevel    string

	// open connects the manager; replaced in tests.
	open func(ctx context.Context) (*manager, func(), error)
}

// NewApp builds the command tree.
func NewApp() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	app.open = app.connect

	app.root = &cobra.Command{
		Use:   "spec-manager",
		Short: "Manage the OpenAPI documents served in database mode",
		Long: `spec-manager imports OpenAPI documents into PostgreSQL, generates their tool
catalogs and selects the one document the server exposes.

Environment Variables:
  DATABASE_URL   PostgreSQL connection string`,
		Example: `  spec-manager import firefly-iii.yaml --activate
  spec-manager import ./specs
  spec-manager seed seed.yaml
  spec-manager list
  spec-manager activate firefly-iii
  spec-manager generate 1`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVar(&app.databaseURL, "database-url", os.Getenv(server.EnvDatabaseURL), "PostgreSQL connection string")
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", "debug, info, warn or error")

	app.root.AddCommand(
		app.newListCmd(),
		app.newActiveCmd(),
		app.newImportCmd(),
		app.newSeedCmd(),
		app.newActivateCmd(),
		app.newDeactivateCmd(),
		app.newDeleteCmd(),
		app.newGenerateCmd(),
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

// Execute runs the command line.
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

func (a *App) connect(ctx context.Context) (*manager, func(), error) {
	if a.databaseURL == "" {
		return nil, nil, server.NewError(server.ErrorTypeValidation, "no database configured",
			"set "+server.EnvDatabaseURL+" or --database-url")
	}
	logger, err := logging.New(logging.Config{Level: a.logLevel, Format: "console"})
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(ctx, a.databaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeDB(db, logger)
		_ = logger.Sync()
	}
	return newManager(repository.NewDocumentRepository(db), logger), closeFn, nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}
}

// withManager runs fn with a connected manager.
func (a *App) withManager(fn func(ctx context.Context, m *manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		m, closeFn, err := a.open(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(cmd.Context(), m)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func (a *App) writeDocuments(docs []*models.OpenAPIDocument) {
	if len(docs) == 0 {
		fmt.Fprintln(a.stdout, "No documents found in the database.")
		return
	}
	fmt.Fprintf(a.stdout, "%-4s %-20s %-30s %-10s %-8s %-6s %s\n", "ID", "Name", "Title", "Version", "Active", "Format", "Checksum")
	fmt.Fprintln(a.stdout, strings.Repeat("-", 100))
	for _, d := range docs {
		fmt.Fprintf(a.stdout, "%-4d %-20s %-30s %-10s %-8t %-6s %s\n",
			d.ID,
			truncate(d.Name, 20),
			truncate(deref(d.Title), 30),
			truncate(deref(d.Version), 10),
			d.Active(),
			deref(d.FileFormat),
			truncate(d.Checksum, 12),
		)
	}
}

func (a *App) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all stored documents",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.withManager(func(ctx context.Context, m *manager) error {
		docs, err := m.store.List(ctx)
		if err != nil {
			return err
		}
		a.writeDocuments(docs)
		return nil
	})
	return cmd
}

func (a *App) newActiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the served document",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.withManager(func(ctx context.Context, m *manager) error {
		doc, err := m.store.GetActive(ctx)
		if err != nil {
			return err
		}
		a.writeDocuments([]*models.OpenAPIDocument{doc})
		return nil
	})
	return cmd
}

func (a *App) newImportCmd() *cobra.Command {
	var (
		name     string
		activate bool
	)
	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Import a document, or every YAML/JSON document in a directory",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return a.withManager(func(ctx context.Context, m *manager) error {
			info, err := os.Stat(path)
			if err != nil {
				return server.Wrap(err, server.ErrorTypeValidation, "failed to read "+path)
			}
			if info.IsDir() {
				if name != "" || activate {
					return server.NewError(server.ErrorTypeValidation, "--name and --activate need a single file", path)
				}
				docs, err := m.importDir(ctx, path)
				if err != nil {
					return err
				}
				for _, d := range docs {
					fmt.Fprintf(a.stdout, "Imported '%s' (id %d)\n", d.Name, d.ID)
				}
				fmt.Fprintf(a.stdout, "Import completed: %d documents imported\n", len(docs))
				return nil
			}

			doc, err := m.importFile(ctx, path, name, activate)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Imported '%s' from '%s' (id %d, active %t)\n", doc.Name, path, doc.ID, doc.Active())
			return nil
		})(cmd, args)
	}
	cmd.Flags().StringVar(&name, "name", "", "document name (default: file name without extension)")
	cmd.Flags().BoolVar(&activate, "activate", false, "serve the document after importing it")
	return cmd
}

func (a *App) newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Import the documents listed in a YAML seed file",
		Long: `Import the documents listed in a YAML seed file:

  documents:
    - file: specs/firefly-iii.yaml
      name: firefly-iii
      active: true`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.withManager(func(ctx context.Context, m *manager) error {
			docs, err := m.seed(ctx, args[0])
			for _, d := range docs {
				fmt.Fprintf(a.stdout, "Seeded '%s' (id %d, active %t)\n", d.Name, d.ID, d.Active())
			}
			return err
		})(cmd, args)
	}
	return cmd
}

func (a *App) newRefCmd(use, short string, run func(ctx context.Context, m *manager, doc *models.OpenAPIDocument) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.withManager(func(ctx context.Context, m *manager) error {
			doc, err := m.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return run(ctx, m, doc)
		})(cmd, args)
	}
	return cmd
}

func (a *App) newActivateCmd() *cobra.Command {
	return a.newRefCmd("activate", "Serve a document, deactivating all others",
		func(ctx context.Context, m *manager, doc *models.OpenAPIDocument) error {
			if err := m.store.Activate(ctx, doc.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Activated '%s' (id %d)\n", doc.Name, doc.ID)
			return nil
		})
}

func (a *App) newDeactivateCmd() *cobra.Command {
	return a.newRefCmd("deactivate", "Stop serving a document",
		func(ctx context.Context, m *manager, doc *models.OpenAPIDocument) error {
			if err := m.store.Deactivate(ctx, doc.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deactivated '%s' (id %d)\n", doc.Name, doc.ID)
			return nil
		})
}

func (a *App) newDeleteCmd() *cobra.Command {
	return a.newRefCmd("delete", "Delete a document and its catalog",
		func(ctx context.Context, m *manager, doc *models.OpenAPIDocument) error {
			if err := m.store.Delete(ctx, doc.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted '%s' (id %d)\n", doc.Name, doc.ID)
			return nil
		})
}

func (a *App) newGenerateCmd() *cobra.Command {
	return a.newRefCmd("generate", "Regenerate and store the tool catalog of a document",
		func(ctx context.Context, m *manager, doc *models.OpenAPIDocument) error {
			c, err := m.generate(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Generated %d tools for '%s' (id %d)\n", c.ToolCount, doc.Name, doc.ID)
			return nil
		})
}

func main() {
	if err := NewApp().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
