package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chravel/chravel-import/internal/batch"
	"github.com/chravel/chravel-import/internal/model"
)

func HandleBatchCommand(args []string) {
	if len(args) == 0 {
		PrintBatchHelp()
		return
	}

	var g globalFlags
	cfg := batch.DefaultConfig()
	var output string
	var timeout int
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	g.register(fs)
	fs.IntVar(&cfg.MaxConcurrency, "c", cfg.MaxConcurrency, "Files imported at once")
	fs.IntVar(&timeout, "t", int(cfg.Timeout/time.Second), "Per-file timeout in seconds")
	fs.IntVar(&cfg.Retries, "retries", 0, "Retries for transient extraction failures")
	fs.StringVar(&cfg.TripID, "trip", "", "Trip to save the items to")
	fs.BoolVar(&cfg.Commit, "commit", false, "Save valid items to the trip")
	fs.StringVar(&output, "o", "", "Write the results to a file (.json for JSON)")
	fs.Usage = PrintBatchHelp

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
	if len(positional) < 2 {
		PrintBatchHelp()
		os.Exit(1)
	}
	kind, err := parseKind(positional[0])
	if err != nil {
		fail(err)
	}
	cfg.Timeout = time.Duration(timeout) * time.Second

	files, err := batch.Collect(positional[1:])
	if err != nil {
		fail(err)
	}
	if len(files) == 0 {
		fail(errors.New("no files to import"))
	}

	a, err := loadApp(g)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("📥 Importing %d %s file(s)\n", len(files), kind)
	fmt.Printf("   Concurrency: %d | Timeout: %ds\n", cfg.MaxConcurrency, timeout)
	fmt.Println()

	processor := batch.NewProcessor(a.Pipeline, cfg, a.Logger)
	result := processor.Process(ctx, kind, files)
	if err := reportBatch(os.Stdout, result, output); err != nil {
		a.Close()
		fail(err)
	}
	if result.Failed > 0 {
		a.Close()
		os.Exit(2)
	}
}

func reportBatch(w io.Writer, result *batch.Result, output string) error {
	fmt.Fprintln(w, result.Summary())

	if output != "" {
		if err := result.Save(output); err != nil {
			return fmt.Errorf("failed to save output file: %w", err)
		}
		fmt.Fprintf(w, "✓ Results saved to: %s\n", output)
	}

	if failed := result.Failures(); len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed files:")
		for _, item := range failed {
			reason := item.Error
			if reason == "" && len(item.Problems) > 0 {
				reason = item.Problems[0]
			}
			if reason == "" {
				reason = "no " + itemNoun(result.Kind) + " found"
			}
			fmt.Fprintf(w, "  - %s: %s\n", item.Path, reason)
		}
	}
	return nil
}

func itemNoun(kind model.Kind) string {
	switch kind {
	case model.KindAgenda:
		return "sessions"
	case model.KindLineup:
		return "names"
	}
	return "events"
}
