package cli

import "fmt"

func PrintExtendedHelp() {
	fmt.Println(`chravel - import trip calendars, agendas and lineups

Usage:
  chravel <command> [flags]

Commands:
  import <kind> [FILE]   Import one file, web page or text
  batch <kind> PATH...   Import many files concurrently
  serve                  Run the HTTP API (add --watch for the inbox)
  watch                  Import files dropped into the inbox directory
  export --trip ID       Write a trip's events as an ICS calendar
  history                List recent imports
  status                 Show configuration summary
  doctor                 Check the installation
  version                Print the version

Kinds: calendar, agenda, lineup

Global flags:
  --config PATH   Config file (default <data>/chravel.yaml)
  --data DIR      Data directory (default ~/.local/share/chravel)

Run 'chravel <command> -h' for command flags.`)
}

func PrintImportHelp() {
	fmt.Println(`Usage: chravel import <calendar|agenda|lineup> [FILE | --url URL | --text TEXT] [flags]

Flags:
  --url URL         Import from a web page
  --text TEXT       Import from pasted text ("-" reads stdin)
  --trip ID         Trip to save the items to
  --commit          Save valid items to the trip, skipping duplicates
  --retries N       Retries for transient extraction failures
  --format FORMAT   table, json or yaml (default table on a terminal)

Examples:
  chravel import calendar schedule.ics
  chravel import agenda --url https://example.com/agenda --format json
  chravel import lineup roster.xlsx --trip trip-42 --commit`)
}

func PrintBatchHelp() {
	fmt.Println(`Usage: chravel batch <calendar|agenda|lineup> PATH... [flags]

Directories contribute their files, non-recursively.

Flags:
  -c N          Files imported at once (default 3)
  -t SECONDS    Per-file timeout (default 120)
  --retries N   Retries for transient extraction failures
  --trip ID     Trip to save the items to
  --commit      Save valid items to the trip
  -o FILE       Write the results to FILE (.json for JSON)`)
}

func PrintExportHelp() {
	fmt.Println(`Usage: chravel export --trip ID [-o FILE]

Writes the trip's stored events as an iCalendar document.`)
}
