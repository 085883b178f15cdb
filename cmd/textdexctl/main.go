// Command textdexctl administers the trigram index from the shell.
//
// Usage:
//
//	textdexctl [-config path] <command> [args]
//
// Commands:
//
//	activate            create the postings table and start the build
//	deactivate          drop the postings table and forget progress
//	upgrade -version v  record a new version, rebuilding on a major or minor bump
//	rebuild             truncate the postings and restart the build
//	status              print the checkpoint, phase and diagnostics
//	batch [-all]        index one slice, or every remaining slice
//	plan <term>         print the candidate query for term
//	search <term>       print the candidate record ids for term
//	notify <id>...      re-index the given records now
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

var errUsage = errors.New("usage: textdexctl [-config path] activate|deactivate|upgrade|rebuild|status|batch|plan|search|notify")

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(ctx, cfg, bootstrap.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		slog.Error("failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *bootstrap.Components, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "activate":
		return app.Engine.Activate(ctx)
	case "deactivate":
		return app.Engine.Deactivate(ctx)
	case "upgrade":
		fs := flag.NewFlagSet("upgrade", flag.ContinueOnError)
		version := fs.String("version", app.Config.Index.Version, "version to record")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return app.Engine.Upgrade(ctx, *version)
	case "rebuild":
		return app.Engine.Rebuild(ctx)
	case "status":
		st, err := app.Engine.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	case "batch":
		return runBatch(ctx, app, rest, out)
	case "plan":
		term, err := termArg(rest)
		if err != nil {
			return err
		}
		plan, err := app.Planner.PlanFor(term)
		if err != nil {
			return err
		}
		query, qargs := plan.Build(0)
		return printJSON(out, map[string]any{"kind": plan.Kind, "query": query, "args": qargs})
	case "search":
		term, err := termArg(rest)
		if err != nil {
			return err
		}
		res, err := executor.New(app.Engine, app.Planner, app.Metrics, app.Clock).Candidates(ctx, term)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	case "notify":
		ids, err := parseIDs(rest)
		if err != nil {
			return err
		}
		return app.Engine.Update(ctx, ids)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func runBatch(ctx context.Context, app *bootstrap.Components, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	all := fs.Bool("all", false, "run until the build is complete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	slices := 0
	for {
		more, err := app.Engine.RunOneBatch(ctx)
		if err != nil {
			return err
		}
		slices++
		if !more || !*all {
			return printJSON(out, map[string]any{"slices": slices, "more": more})
		}
	}
}

func termArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("a search term is required")
	}
	return strings.Join(args, " "), nil
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one record id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
