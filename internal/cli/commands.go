// Package cli implements the chravel subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/chravel/chravel-import/internal/app"
	"github.com/chravel/chravel-import/internal/config"
	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
	"github.com/chravel/chravel-import/internal/store"
)

var Version = "dev"

// globalFlags are accepted by every command that loads configuration
type globalFlags struct {
	configPath string
	dataDir    string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Path to config file")
	fs.StringVar(&g.dataDir, "data", "", "Path to data directory")
}

func loadConfig(g globalFlags) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return config.Load(g.configPath, g.dataDir)
}

func loadApp(g globalFlags) (*app.App, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	st, err := store.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a, err := app.New(cfg, st, logger, Version)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parseInterspersed parses fs allowing flags after positional arguments
// and returns the positionals.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func parseKind(s string) (model.Kind, error) {
	kind, ok := model.ParseKind(s)
	if !ok {
		return "", fmt.Errorf("unknown import kind %q (want calendar, agenda or lineup)", s)
	}
	return kind, nil
}

// importOptions is one import command invocation
type importOptions struct {
	Kind    model.Kind
	File    string
	URL     string
	Text    string
	TripID  string
	Commit  bool
	Retries int
	Format  string
}

func (o importOptions) request() (pipeline.Request, error) {
	req := pipeline.Request{
		Kind:    o.Kind,
		TripID:  o.TripID,
		Commit:  o.Commit,
		Retries: o.Retries,
	}

	sources := 0
	for _, s := range []string{o.File, o.URL, o.Text} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return req, errors.New("give exactly one of FILE, --url or --text")
	}

	switch {
	case o.File != "":
		data, err := os.ReadFile(o.File)
		if err != nil {
			return req, err
		}
		name := filepath.Base(o.File)
		req.File = &importer.File{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Data:        data,
		}
	case o.URL != "":
		req.URL = o.URL
	default:
		req.Text = o.Text
	}
	return req, nil
}

// runImport imports according to opts and renders the outcome to w. It
// returns errImportInvalid when the import produced nothing usable.
func runImport(ctx context.Context, p *pipeline.Pipeline, opts importOptions, w io.Writer) error {
	if err := checkFormat(opts.Format); err != nil {
		return err
	}
	req, err := opts.request()
	if err != nil {
		return err
	}
	out, err := p.Import(ctx, req)
	if err != nil {
		return err
	}
	if err := Render(w, out, opts.Format); err != nil {
		return err
	}
	if !out.Result.Valid() {
		return errImportInvalid
	}
	return nil
}

var errImportInvalid = errors.New("import produced no usable items")

func HandleImportCommand(args []string) {
	if len(args) == 0 {
		PrintImportHelp()
		return
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		PrintImportHelp()
		return
	}

	var g globalFlags
	opts := importOptions{}
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	g.register(fs)
	fs.StringVar(&opts.URL, "url", "", "Import from a web page")
	fs.StringVar(&opts.Text, "text", "", "Import from pasted text (\"-\" reads stdin)")
	fs.StringVar(&opts.TripID, "trip", "", "Trip to save the items to")
	fs.BoolVar(&opts.Commit, "commit", false, "Save valid items to the trip")
	fs.IntVar(&opts.Retries, "retries", 0, "Retries for transient extraction failures")
	fs.StringVar(&opts.Format, "format", defaultFormat(os.Stdout), "Output format: table, json or yaml")
	fs.Usage = PrintImportHelp

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
	if len(positional) == 0 || len(positional) > 2 {
		PrintImportHelp()
		os.Exit(1)
	}

	kind, err := parseKind(positional[0])
	if err != nil {
		fail(err)
	}
	opts.Kind = kind
	if len(positional) == 2 {
		opts.File = positional[1]
	}
	if opts.Text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err)
		}
		opts.Text = string(data)
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runImport(ctx, a.Pipeline, opts, os.Stdout); err != nil {
		a.Close()
		if errors.Is(err, errImportInvalid) {
			os.Exit(2)
		}
		fail(err)
	}
}

func HandleServeCommand(args []string) {
	var g globalFlags
	var watch bool
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	g.register(fs)
	fs.BoolVar(&watch, "watch", false, "Also import files dropped into the inbox directory")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	fmt.Printf("Starting chravel import server %s\n", Version)
	fmt.Printf("URL: http://localhost:%d\n", a.Config.Server.Port)
	if err := a.RunServer(watch); err != nil {
		a.Logger.Error("Server stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
}

func HandleWatchCommand(args []string) {
	var g globalFlags
	var trip string
	var commit bool
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	g.register(fs)
	fs.StringVar(&trip, "trip", "", "Trip to save imported items to (overrides inbox.trip_id)")
	fs.BoolVar(&commit, "commit", false, "Save valid items to the trip")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	if trip != "" {
		a.Config.Inbox.TripID = trip
	}
	if commit {
		a.Config.Inbox.Commit = true
	}
	if a.Config.Inbox.Commit && a.Config.Inbox.TripID == "" {
		a.Close()
		fail(errors.New("--commit needs a trip (--trip or inbox.trip_id)"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartCron(); err != nil {
		a.Logger.Warn("Janitor not started", zap.Error(err))
	}
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.Config.Inbox.Dir)
	if err := a.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Close()
		fail(err)
	}
	if a.CronRunner != nil {
		a.CronRunner.Stop()
	}
}

func HandleExportCommand(args []string) {
	var g globalFlags
	var trip, output string
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	g.register(fs)
	fs.StringVar(&trip, "trip", "", "Trip to export")
	fs.StringVar(&output, "o", "", "Output file (default stdout)")
	fs.Usage = PrintExportHelp
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
	if trip == "" {
		PrintExportHelp()
		os.Exit(1)
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	if err := runExport(context.Background(), a.Pipeline, trip, output, os.Stdout); err != nil {
		a.Close()
		fail(err)
	}
	if output != "" {
		fmt.Printf("✓ Calendar written to: %s\n", output)
	}
}

func runExport(ctx context.Context, p *pipeline.Pipeline, trip, output string, w io.Writer) error {
	data, err := p.ExportCalendar(ctx, trip)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = w.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0644)
}

func HandleHistoryCommand(args []string) {
	var g globalFlags
	var trip string
	var limit int
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	g.register(fs)
	fs.StringVar(&trip, "trip", "", "Only show imports for this trip")
	fs.IntVar(&limit, "limit", 20, "Maximum entries")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	if err := runHistory(context.Background(), a.Pipeline, trip, limit, os.Stdout); err != nil {
		a.Close()
		fail(err)
	}
}

func runHistory(ctx context.Context, p *pipeline.Pipeline, trip string, limit int, w io.Writer) error {
	records, err := p.History(ctx, trip, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No imports recorded.")
		return nil
	}
	for _, r := range records {
		status := "✅"
		if !r.IsValid {
			status = "❌"
		}
		fmt.Fprintf(w, "%s %s  %-8s %-6s items=%d saved=%d dup=%d  %s\n",
			status, r.CreatedAt.Format("2006-01-02 15:04"), r.Kind, orDash(r.SourceFormat),
			r.Items, r.Saved, r.Duplicates, r.Source)
	}
	return nil
}

func HandleStatusCommand(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fail(fmt.Errorf("failed to load config: %w", err))
	}
	printStatus(os.Stdout, cfg)
}

func printStatus(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Chravel Import Status")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Version: %s\n", Version)
	fmt.Fprintf(w, "Data:    %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(w, "SQLite:  %s\n", cfg.Storage.SQLitePath)
	fmt.Fprintf(w, "Objects: %s\n", cfg.Storage.BadgerPath)
	fmt.Fprintf(w, "Inbox:   %s\n", cfg.Inbox.Dir)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Fprintf(w, "  Public object URL: %s/objects/\n", strings.TrimSuffix(cfg.Storage.PublicBaseURL, "/"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Extraction:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.Extraction.Mode)
	switch cfg.Extraction.Mode {
	case config.ExtractionLLM:
		p, _ := cfg.GetProvider(cfg.LLM.DefaultProvider)
		fmt.Fprintf(w, "  Provider: %s (%s)\n", cfg.LLM.DefaultProvider, orDash(p.Model))
		fmt.Fprintf(w, "  API key:  %s\n", maskToken(p.APIKey))
	case config.ExtractionRemote:
		fmt.Fprintf(w, "  Endpoint: %s\n", cfg.Extraction.Endpoint)
		fmt.Fprintf(w, "  API key:  %s\n", maskToken(cfg.Extraction.APIKey))
	}
	fmt.Fprintf(w, "  JS rendering: %s\n", enabledStatus(cfg.Scrape.RenderJS))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'chravel doctor' for diagnostics")
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func HandleDoctorCommand(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	fmt.Println("Chravel Import Diagnostics")
	fmt.Println("==========================")
	fmt.Println()

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Println("❌ Config: Error loading configuration")
		fmt.Printf("   %v\n", err)
		fmt.Println()
		fmt.Println("⚠️  Found 1 issue(s).")
		os.Exit(1)
	}
	fmt.Println("✅ Config: Loaded successfully")

	issues := runDoctor(os.Stdout, cfg, exec.LookPath)

	fmt.Println()
	if issues == 0 {
		fmt.Println("✅ All checks passed!")
	} else {
		fmt.Printf("⚠️  Found %d issue(s).\n", issues)
	}
}

// runDoctor prints one line per check and returns the number of issues
func runDoctor(w io.Writer, cfg *config.Config, lookPath func(string) (string, error)) int {
	issues := 0

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Fprintln(w, "❌ Data Directory: Does not exist")
		issues++
	} else {
		fmt.Fprintln(w, "✅ Data Directory: Exists")
	}

	switch cfg.Extraction.Mode {
	case config.ExtractionNone:
		fmt.Fprintln(w, "⚠️  Extraction: Disabled (PDF, image, text and URL imports will fail)")
	case config.ExtractionRemote:
		fmt.Fprintf(w, "✅ Extraction: Remote (%s)\n", cfg.Extraction.Endpoint)
	default:
		if _, err := cfg.DefaultProvider(); err != nil {
			fmt.Fprintf(w, "❌ Extraction: %v\n", err)
			fmt.Fprintf(w, "   Set CHRAVEL_LLM_PROVIDERS_%s_API_KEY\n", strings.ToUpper(cfg.LLM.DefaultProvider))
			issues++
		} else {
			fmt.Fprintf(w, "✅ Extraction: LLM provider %s\n", cfg.LLM.DefaultProvider)
		}
	}

	if strings.HasPrefix(cfg.Storage.PublicBaseURL, "http://localhost") && cfg.Extraction.Mode == config.ExtractionRemote {
		fmt.Fprintln(w, "⚠️  Public URL: localhost is not reachable by a hosted extraction service")
		issues++
	}

	if cfg.Scrape.RenderJS {
		if path := findChrome(lookPath); path == "" {
			fmt.Fprintln(w, "❌ Chrome/Chromium: Not found (required for scrape.render_js)")
			fmt.Fprintln(w, "   Install: sudo apt-get install chromium-browser")
			issues++
		} else {
			fmt.Fprintf(w, "✅ Chrome: %s\n", path)
		}
	}

	return issues
}

func findChrome(lookPath func(string) (string, error)) string {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := lookPath(name); err == nil {
			return path
		}
	}
	return ""
}
