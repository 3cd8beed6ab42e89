package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/engine"
	"github.com/vk/sheetgridgo/internal/sheetport"
	"github.com/vk/sheetgridgo/internal/value"
	"github.com/vk/sheetgridgo/internal/xlsx"
)

// App encapsulates one manifest-driven evaluation run: load the manifest,
// bind a workbook, write the requested inputs, evaluate once, and print
// the outputs.
type App struct {
	outW   io.Writer
	errW   io.Writer
	logger *slog.Logger
	config *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger.Debug("logger configured")
	return &App{outW: outW, errW: os.Stderr, logger: logger, config: cfg}
}

// Run executes the full session lifecycle and writes the out-ports to the
// configured output as JSON.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	cfg := a.config

	doc, err := sheetport.LoadManifest(ctx, cfg.ManifestPath)
	if err != nil {
		return err
	}

	wb, err := a.openWorkbook(ctx, doc)
	if err != nil {
		return err
	}

	session, err := sheetport.NewSession(ctx, doc, wb)
	if err != nil {
		return err
	}

	inputs, err := parseSets(cfg.Sets)
	if err != nil {
		return err
	}
	if len(inputs) > 0 {
		if err := session.WriteInputs(inputs); err != nil {
			return err
		}
	}

	outputs, err := session.EvaluateOnce(ctx, sheetport.Options{
		FreezeVolatiles: cfg.FreezeVolatiles,
		RandSeed:        cfg.Seed,
		FixedTimestamp:  cfg.Timestamp,
		Timezone:        cfg.Timezone,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	if err := enc.Encode(printable(outputs)); err != nil {
		return err
	}

	if cfg.Save {
		if err := xlsx.Save(ctx, wb, cfg.WorkbookPath); err != nil {
			return err
		}
		a.logger.Info("workbook saved", "path", cfg.WorkbookPath)
	}
	return nil
}

// openWorkbook loads the configured .xlsx file, or builds an empty
// single-sheet workbook when no backing file was given. The manifest's
// date_system applies either way.
func (a *App) openWorkbook(ctx context.Context, doc *sheetport.Document) (*engine.Workbook, error) {
	opts := engine.Options{Logger: a.logger}
	if doc.Manifest != nil && doc.Manifest.Workbook != nil {
		ds, _ := value.ParseDateSystem(doc.Manifest.Workbook.DateSystem)
		opts.DateSystem = ds
	}

	if a.config.WorkbookPath != "" {
		return xlsx.Load(ctx, a.config.WorkbookPath, opts)
	}
	wb := engine.New(opts)
	if err := wb.AddSheet("Sheet1"); err != nil {
		return nil, err
	}
	return wb, nil
}

// parseSets turns repeated "port=value" (or "port.field=value") flags into
// the input map WriteInputs expects. Values are typed by syntax: numbers,
// then booleans, then text.
func parseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("malformed -set %q (want port=value)", s)
		}
		var v any
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			v = n
		} else if b, err := strconv.ParseBool(raw); err == nil {
			v = b
		} else {
			v = raw
		}

		if port, field, nested := strings.Cut(key, "."); nested {
			rec, _ := out[port].(map[string]any)
			if rec == nil {
				rec = make(map[string]any)
			}
			rec[field] = v
			out[port] = rec
		} else {
			out[key] = v
		}
	}
	return out, nil
}

// printable rewrites evaluation error values as their display strings so
// the JSON output reads like a spreadsheet would show it.
func printable(outputs map[string]any) map[string]any {
	out := make(map[string]any, len(outputs))
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = printableValue(outputs[k])
	}
	return out
}

func printableValue(v any) any {
	switch t := v.(type) {
	case *value.ErrValue:
		return t.Display()
	case map[string]any:
		return printable(t)
	case [][]any:
		rows := make([][]any, len(t))
		for i, r := range t {
			rows[i] = make([]any, len(r))
			for j, c := range r {
				rows[i][j] = printableValue(c)
			}
		}
		return rows
	default:
		return v
	}
}
