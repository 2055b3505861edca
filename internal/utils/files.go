package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SafeWriteFile writes data next to path and renames it into place, creating
// the parent directory when needed.
func SafeWriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// ReportPath derives an output file name for a dataset inside dir,
// e.g. ("out", "data/sales.csv", ".md") -> "out/sales.report.md".
func ReportPath(dir, source, ext string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "dataset"
	}
	return filepath.Join(dir, stem+".report"+ext)
}
