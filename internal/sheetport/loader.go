package sheetport

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/fsutil"
)

// LoadManifest reads, decodes, and validates a manifest file. When path is a
// directory it must contain exactly one .hcl file, which is taken as the
// manifest.
func LoadManifest(ctx context.Context, path string) (*Document, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if info.IsDir() {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s for a manifest: %w", path, err)
		}
		if len(found) != 1 {
			return nil, fmt.Errorf("expected exactly one .hcl manifest under %s, found %d", path, len(found))
		}
		path = found[0]
	}
	logger.Debug("loading manifest", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}
	return decodeAndValidate(file.Body, path)
}

// ParseManifest decodes and validates manifest source held in memory; the
// filename only labels diagnostics.
func ParseManifest(src []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filename, diags)
	}
	return decodeAndValidate(file.Body, filename)
}

func decodeAndValidate(body hcl.Body, name string) (*Document, error) {
	var doc Document
	if diags := gohcl.DecodeBody(body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", name, diags)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
