package commoncrawl

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalOutputFileWriter implements the OutputFileWriter interface.
// Writes files to the local file system
type LocalOutputFileWriter struct{}

// WriteOutputFile writes out the specified file to the local filesystem
func (fileWriter *LocalOutputFileWriter) WriteOutputFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output folder for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}
