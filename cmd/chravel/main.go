package main

import (
	"fmt"
	"os"

	"github.com/chravel/chravel-import/internal/cli"
)

var version = "dev"

func main() {
	cli.Version = version

	if len(os.Args) < 2 {
		cli.PrintExtendedHelp()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "import":
		cli.HandleImportCommand(args)
	case "batch":
		cli.HandleBatchCommand(args)
	case "serve", "server":
		cli.HandleServeCommand(args)
	case "watch":
		cli.HandleWatchCommand(args)
	case "export":
		cli.HandleExportCommand(args)
	case "history":
		cli.HandleHistoryCommand(args)
	case "status":
		cli.HandleStatusCommand(args)
	case "doctor":
		cli.HandleDoctorCommand(args)
	case "help", "--help", "-h":
		cli.PrintExtendedHelp()
	case "version", "--version", "-v":
		fmt.Printf("chravel version %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		cli.PrintExtendedHelp()
		os.Exit(1)
	}
}
