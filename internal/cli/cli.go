package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vk/sheetgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("sheetgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
SheetGridGo - a manifest-driven spreadsheet evaluation engine.

Usage:
  sheetgridgo [options] [MANIFEST_PATH]

Arguments:
  MANIFEST_PATH
    Path to a SheetPort manifest (.hcl file).

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "", "Path to the SheetPort manifest file.")
	workbookFlag := flagSet.String("workbook", "", "Path to an .xlsx file backing the session.")
	saveFlag := flagSet.Bool("save", false, "Write the workbook back to -workbook after evaluation.")
	var sets stringList
	flagSet.Var(&sets, "set", "Input assignment port=value (repeatable; port.field=value for records).")
	freezeFlag := flagSet.Bool("freeze-volatiles", false, "Keep volatile formulas at their cached values.")
	seedFlag := flagSet.String("seed", "", "Seed for the random stream behind RAND and RANDBETWEEN.")
	timestampFlag := flagSet.String("timestamp", "", "Fixed RFC 3339 timestamp for NOW and TODAY.")
	timezoneFlag := flagSet.String("timezone", "", "Timezone: 'utc', 'local', or a fixed offset like '+02:00'.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *manifestFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Manifest path determined.", "path", path)

	if path == "" {
		slog.Debug("No manifest path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	var seed *uint64
	if *seedFlag != "" {
		n, err := strconv.ParseUint(*seedFlag, 10, 64)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid seed %q: must be an unsigned integer", *seedFlag)}
		}
		seed = &n
	}

	var timestamp *time.Time
	if *timestampFlag != "" {
		ts, err := time.Parse(time.RFC3339, *timestampFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid timestamp %q: want RFC 3339", *timestampFlag)}
		}
		timestamp = &ts
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ManifestPath:    path,
		WorkbookPath:    *workbookFlag,
		Save:            *saveFlag,
		Sets:            sets,
		FreezeVolatiles: *freezeFlag,
		Seed:            seed,
		Timestamp:       timestamp,
		Timezone:        *timezoneFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
