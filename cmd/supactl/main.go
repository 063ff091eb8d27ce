package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/supactl/internal/catalog"
	"github.com/mattjoyce/supactl/internal/config"
	"github.com/mattjoyce/supactl/internal/connector"
	"github.com/mattjoyce/supactl/internal/dispatch"
	"github.com/mattjoyce/supactl/internal/doctor"
	"github.com/mattjoyce/supactl/internal/journal"
	"github.com/mattjoyce/supactl/internal/jval"
	"github.com/mattjoyce/supactl/internal/log"
	"github.com/mattjoyce/supactl/internal/relay"
	"github.com/mattjoyce/supactl/internal/tui"
)

const version = "0.1.0"

// Exit codes: 0 success, 1 usage/local failure, 2 dispatch failure.
const exitDispatchError = 2

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "call":
		os.Exit(runCall(args))
	case "docs":
		os.Exit(runDocs(args))
	case "ops":
		os.Exit(runOpsNoun(args))
	case "journal":
		os.Exit(runJournalNoun(args))
	case "relay":
		os.Exit(runRelayNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))

	// --- ROOT COMMANDS ---
	case "watch":
		os.Exit(runWatch(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("supactl version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`supactl - Supabase management connector

Drives the platform management API through the external MCP tool.

Usage:
  supactl <command> [flags]

Commands:
  call <operation>  Invoke one remote operation with JSON arguments
  docs <query>      Search platform documentation
  ops list          Show the remote operation catalog
  journal list      Show recent recorded calls
  journal prune     Delete journal entries past retention
  relay start       Serve the local HTTP relay in foreground
  watch             Live terminal view over the call journal
  config check      Validate syntax and integrity
  config lock       Authorize current config state (update checksums)
  config show       Print the effective configuration

General:
  doctor            Check binary, credentials, and config health
  version           Show version information
  help              Show this help message

Use 'supactl <command> --help' for command-specific flags.
`)
}

func isHelpToken(s string) bool {
	return s == "help" || s == "--help" || s == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

// splitOperation pulls the leading positional argument off args.
func splitOperation(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", args
	}
	return args[0], args[1:]
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openJournal opens the configured journal, or returns nils when disabled.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Journal, *sql.DB, error) {
	if !cfg.Journal.Enabled {
		return nil, nil, nil
	}
	db, err := journal.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}
	return journal.New(db), db, nil
}

// --- call ---

func runCall(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		fmt.Print(`Usage: supactl call <operation> [flags]

Flags:
  --input JSON     Argument object for the operation (default {})
  --config PATH    Path to configuration file
  --timeout DUR    Override the configured call timeout
  --raw            Print the response without re-indenting

Exit codes: 0 success, 1 usage error, 2 dispatch failure.
`)
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	operation, rest := splitOperation(args)
	if operation == "" {
		fmt.Fprintln(os.Stderr, "Usage: supactl call <operation> [flags]")
		return 1
	}

	var configPath, input string
	var timeout time.Duration
	var raw bool

	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&input, "input", "", "JSON argument object")
	fs.DurationVar(&timeout, "timeout", 0, "Override call timeout")
	fs.BoolVar(&raw, "raw", false, "Print response without re-indenting")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	var callArgs *jval.Value
	if input != "" {
		callArgs, err = jval.Parse([]byte(input))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --input: %v\n", err)
			return 1
		}
	}

	if timeout <= 0 {
		timeout = cfg.Connector.Timeout
	}
	d := dispatch.New(dispatch.Options{
		Binary:      cfg.Connector.Binary,
		Server:      cfg.Connector.Server,
		Timeout:     timeout,
		GracePeriod: cfg.Connector.GracePeriod,
	})

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	result, invokeErr := d.Invoke(ctx, operation, callArgs)
	elapsed := time.Since(start)

	recordCall(cfg, operation, callArgs, elapsed, invokeErr)

	if invokeErr != nil {
		fmt.Fprintln(os.Stderr, invokeErr.Error())
		return exitDispatchError
	}

	out := []byte(result)
	if !raw {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, result, "", "  "); err == nil {
			out = []byte(pretty.String())
		}
	}
	fmt.Println(string(out))
	return 0
}

// recordCall appends the outcome to the journal, best effort.
func recordCall(cfg *config.Config, operation string, args *jval.Value, elapsed time.Duration, invokeErr error) {
	if !cfg.Journal.Enabled {
		return
	}

	// Recording must survive a cancelled invoke context.
	jctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	j, db, err := openJournal(jctx, cfg)
	if err != nil {
		log.Warn("journal unavailable", "error", err)
		return
	}
	defer db.Close()

	if _, err := j.Record(jctx, journal.NewEntry(operation, args, elapsed, invokeErr)); err != nil {
		log.Warn("failed to record call", "error", err)
	}
}

// --- docs ---

func runDocs(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		fmt.Print(`Usage: supactl docs <query> [flags]

Flags:
  --limit N        Maximum results to show (default 5)
  --config PATH    Path to configuration file
  --json           Output results as JSON

Exit codes: 0 success, 1 usage error, 2 dispatch failure.
`)
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	query, rest := splitOperation(args)
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: supactl docs <query> [flags]")
		return 1
	}

	var configPath string
	var limit int
	var asJSON bool

	fs := flag.NewFlagSet("docs", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.IntVar(&limit, "limit", 5, "Maximum results to show")
	fs.BoolVar(&asJSON, "json", false, "Output as JSON")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	client := connector.New(dispatch.New(dispatch.Options{
		Binary:      cfg.Connector.Binary,
		Server:      cfg.Connector.Server,
		Timeout:     cfg.Connector.Timeout,
		GracePeriod: cfg.Connector.GracePeriod,
	}))

	ctx, cancel := signalContext()
	defer cancel()

	results, err := client.SearchDocs(ctx, query, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitDispatchError
	}

	if asJSON {
		out, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	if len(results) == 0 {
		fmt.Println("No documentation matches.")
		return 0
	}
	for _, r := range results {
		fmt.Printf("%s\n    %s\n", r.Title, r.Href)
	}
	return 0
}

// --- ops ---

func runOpsNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Print(`Usage: supactl ops list [--json] [--group NAME]
`)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "list":
		return runOpsList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown ops action: %s\n", args[0])
		return 1
	}
}

func runOpsList(args []string) int {
	var asJSON bool
	var group string

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.BoolVar(&asJSON, "json", false, "Output as JSON")
	fs.StringVar(&group, "group", "", "Only show one group")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ops := catalog.All()
	if group != "" {
		ops = catalog.ByGroup(catalog.Group(group))
		if len(ops) == 0 {
			fmt.Fprintf(os.Stderr, "Unknown group: %s\n", group)
			return 1
		}
	}

	if asJSON {
		out, err := json.MarshalIndent(map[string]any{"operations": ops}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}

	for _, op := range ops {
		auth := " "
		if op.NeedsAuth {
			auth = "*"
		}
		fmt.Printf("%-10s %s %-28s %s\n", op.Group, auth, op.Name, op.Summary)
	}
	fmt.Println("\n* needs the platform access token")
	return 0
}

// --- journal ---

func runJournalNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Print(`Usage:
  supactl journal list [--limit N] [--config PATH]
  supactl journal prune [--config PATH]
`)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "list":
		return runJournalList(args[1:])
	case "prune":
		return runJournalPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", args[0])
		return 1
	}
}

func runJournalList(args []string) int {
	var configPath string
	var limit int

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.IntVar(&limit, "limit", 20, "Number of entries to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	ctx, cancel := signalContext()
	defer cancel()

	j, db, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	if j == nil {
		fmt.Fprintln(os.Stderr, "Journal is disabled in configuration")
		return 1
	}
	defer db.Close()

	entries, err := j.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}

	if len(entries) == 0 {
		fmt.Println("No recorded calls.")
		return 0
	}
	for _, e := range entries {
		fmt.Printf("%s  %-16s %4d  %8s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status, e.Code,
			e.Duration.Truncate(time.Millisecond),
			e.Operation)
	}
	return 0
}

func runJournalPrune(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	ctx, cancel := signalContext()
	defer cancel()

	j, db, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	if j == nil {
		fmt.Fprintln(os.Stderr, "Journal is disabled in configuration")
		return 1
	}
	defer db.Close()

	n, err := j.Prune(ctx, cfg.Journal.Retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune error: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d entries older than %s\n", n, cfg.Journal.Retention)
	return 0
}

// --- relay ---

func runRelayNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Print(`Usage: supactl relay start [--config PATH]
`)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "start":
		return runRelayStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown relay action: %s\n", args[0])
		return 1
	}
}

func runRelayStart(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	if !cfg.Relay.Enabled {
		fmt.Fprintln(os.Stderr, "Relay is disabled in configuration (set relay.enabled: true)")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	j, db, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	if db != nil {
		defer db.Close()
	}

	d := dispatch.New(dispatch.Options{
		Binary:      cfg.Connector.Binary,
		Server:      cfg.Connector.Server,
		Timeout:     cfg.Connector.Timeout,
		GracePeriod: cfg.Connector.GracePeriod,
	})

	var reader relay.JournalReader
	if j != nil {
		reader = j
	}

	s := relay.New(relay.Config{
		Listen: cfg.Relay.Listen,
		APIKey: cfg.Relay.Auth.APIKey,
	}, recordingDispatcher{d: d, j: j}, reader)

	if err := s.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Relay error: %v\n", err)
		return 1
	}
	return 0
}

// recordingDispatcher journals every relay invoke around the dispatcher.
type recordingDispatcher struct {
	d *dispatch.Dispatcher
	j *journal.Journal
}

func (rd recordingDispatcher) Invoke(ctx context.Context, operation string, args *jval.Value) (json.RawMessage, error) {
	start := time.Now()
	raw, err := rd.d.Invoke(ctx, operation, args)
	if rd.j != nil {
		jctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, recErr := rd.j.Record(jctx, journal.NewEntry(operation, args, time.Since(start), err)); recErr != nil {
			log.Warn("failed to record call", "error", recErr)
		}
		cancel()
	}
	return raw, err
}

// --- watch ---

func runWatch(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup("ERROR") // Keep slog off the TUI screen

	ctx, cancel := signalContext()
	defer cancel()

	j, db, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	if j == nil {
		fmt.Fprintln(os.Stderr, "Watch needs the journal (set journal.enabled: true)")
		return 1
	}
	defer db.Close()

	if err := tui.Run(j); err != nil {
		fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		return 1
	}
	return 0
}

// --- doctor ---

func runDoctor(args []string) int {
	var configPath string
	var asJSON bool

	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&asJSON, "json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level)

	result := doctor.New(cfg).Validate()

	if asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
	} else {
		for _, issue := range result.Errors {
			fmt.Printf("ERROR   [%s] %s: %s\n", issue.Category, issue.Field, issue.Message)
		}
		for _, issue := range result.Warnings {
			fmt.Printf("WARNING [%s] %s: %s\n", issue.Category, issue.Field, issue.Message)
		}
		if result.Valid {
			fmt.Println("Status: environment check PASSED")
		} else {
			fmt.Println("Status: environment check FAILED")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}
