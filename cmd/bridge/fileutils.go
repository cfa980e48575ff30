package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// saveLocalFile writes data to localPath, creating parent directories.
func saveLocalFile(localPath string, data []byte) error {
	absolutePath, err := filepath.Abs(localPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// TODO: take the mode from the remote file once Backend exposes file info
	if err := os.MkdirAll(filepath.Dir(absolutePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(absolutePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write destination file: %w", err)
	}
	return nil
}

// readLocalFile reads localPath, or stdin when localPath is "-".
func readLocalFile(localPath string, stdin io.Reader) ([]byte, error) {
	if localPath == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	return data, nil
}
