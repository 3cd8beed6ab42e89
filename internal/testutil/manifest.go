package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/sheetgridgo/internal/sheetport"
)

// Manifest parses manifest source, failing the test on any issue.
func Manifest(t *testing.T, src string) *sheetport.Document {
	t.Helper()
	doc, err := sheetport.ParseManifest([]byte(src), t.Name()+".hcl")
	require.NoError(t, err)
	return doc
}

// ManifestFile writes manifest source into the test's temp directory and
// returns its path.
func ManifestFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}
