package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath string // SheetPort manifest (HCL)
	WorkbookPath string // optional .xlsx backing file
	Save         bool   // write the workbook back after evaluation

	Sets            []string // repeated port=value assignments
	FreezeVolatiles bool
	Seed            *uint64
	Timestamp       *time.Time
	Timezone        string

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.Save && cfg.WorkbookPath == "" {
		return nil, errors.New("Save requires a WorkbookPath to write back to")
	}
	return &cfg, nil
}
