package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ExportFilename is the name of the downloaded transcript.
const ExportFilename = "transcript.txt"

// ExportTranscript writes text to dir/transcript.txt, replacing any previous
// export, and returns the path. An empty dir means the working directory.
func ExportTranscript(dir, text string) (string, error) {
	if text == "" {
		return "", errors.New("export transcript: transcript is empty")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFilename)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}
