package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
)

const replHelp = `Available commands:

  list                 List available tools
  schema <tool>        Show the input schema of a tool
  call <tool> [json]   Call a tool with JSON arguments
  help                 Show this help message
  exit                 Exit
`

func (a *App) newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Call tools interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			src, err := openCatalogSource(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer src.Close()
			catalog, err := src.loader.LoadCatalog(ctx, src.source)
			if err != nil {
				return err
			}
			resolver, closeResolver, err := newResolver(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeResolver()

			s := &replSession{
				catalog: catalog,
				exec:    openapi2mcp.NewExecutor(resolver, catalog.Schemes(), logger),
				ec:      cfg.ResolveLocalExecutionContext(a.opts.tools, a.opts.preset, logger),
				out:     a.stdout,
			}
			if s.ec.BaseURL == "" {
				fmt.Fprintln(a.stderr, "warning: no Firefly III base URL configured, calls will fail")
			}
			return s.run(ctx)
		},
	}
}

// replSession holds the state of one interactive session.
type replSession struct {
	catalog *openapi2mcp.Catalog
	exec    *openapi2mcp.Executor
	ec      auth.ExecutionContext
	out     io.Writer
}

func (s *replSession) toolNames() []string {
	tools := s.catalog.Filter(s.ec.EnabledTags)
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func (s *replSession) completer() *readline.PrefixCompleter {
	var callItems, schemaItems []readline.PrefixCompleterInterface
	for _, name := range s.toolNames() {
		callItems = append(callItems, readline.PcItem(name))
		schemaItems = append(schemaItems, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("call", callItems...),
		readline.PcItem("schema", schemaItems...),
	)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".firefly_mcp_history")
}

func (s *replSession) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "firefly> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    s.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(s.out, "Type 'help' for available commands.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle runs one command line and reports whether the session should end.
func (s *replSession) handle(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprint(s.out, replHelp)
	case "list":
		writeToolList(s.out, s.catalog.Filter(s.ec.EnabledTags))
	case "schema":
		def, ok := s.lookup(rest)
		if !ok {
			return false
		}
		pretty, err := json.MarshalIndent(def.InputSchema, "", "  ")
		if err != nil {
			fmt.Fprintf(s.out, "failed to encode schema: %v\n", err)
			return false
		}
		fmt.Fprintf(s.out, "Schema for %s:\n%s\n", def.Name, pretty)
	case "call":
		s.call(ctx, rest)
	default:
		fmt.Fprintf(s.out, "unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (s *replSession) lookup(name string) (*openapi2mcp.ToolDefinition, bool) {
	if name == "" {
		fmt.Fprintln(s.out, "missing tool name")
		return nil, false
	}
	def, ok := s.catalog.Lookup(name)
	if !ok || (len(s.ec.EnabledTags) > 0 && !def.HasTag(s.ec.EnabledTags...)) {
		fmt.Fprintf(s.out, "unknown tool %q\n", name)
		return nil, false
	}
	return def, true
}

func (s *replSession) call(ctx context.Context, rest string) {
	name, raw, _ := strings.Cut(rest, " ")
	def, ok := s.lookup(name)
	if !ok {
		return
	}

	args := map[string]any{}
	if raw = strings.TrimSpace(raw); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			fmt.Fprintf(s.out, "arguments must be a JSON object: %v\n", err)
			return
		}
	}

	res, err := s.exec.Execute(ctx, def.Name, def, args, s.ec)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if res.IsError {
		fmt.Fprintf(s.out, "[error] %s\n", res.Text)
		return
	}
	fmt.Fprintln(s.out, res.Text)
}
