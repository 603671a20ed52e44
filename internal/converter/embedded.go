package converter

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

//go:embed python/*.py
var bridgeFiles embed.FS

const bridgeScript = "docling_bridge.py"

var (
	extractedScriptPath string
	extractOnce         sync.Once
	extractError        error
)

// BridgeScriptPath extracts the embedded Python bridge to a temporary directory once per
// process and returns the path of the main script.
func BridgeScriptPath() (string, error) {
	extractOnce.Do(func() {
		extractedScriptPath, extractError = extractBridge()
	})
	return extractedScriptPath, extractError
}

func extractBridge() (string, error) {
	tempDir, err := os.MkdirTemp("", "docling-gateway-python-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}

	entries, err := fs.ReadDir(bridgeFiles, "python")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded python directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".py" {
			continue
		}

		content, err := bridgeFiles.ReadFile("python/" + entry.Name())
		if err != nil {
			return "", fmt.Errorf("failed to read embedded file %s: %w", entry.Name(), err)
		}

		if err := os.WriteFile(filepath.Join(tempDir, entry.Name()), content, 0700); err != nil {
			return "", fmt.Errorf("failed to write extracted file %s: %w", entry.Name(), err)
		}
	}

	mainScript := filepath.Join(tempDir, bridgeScript)
	if _, err := os.Stat(mainScript); err != nil {
		return "", fmt.Errorf("bridge script not found after extraction: %w", err)
	}

	return mainScript, nil
}

// CleanupBridge removes the extracted scripts. Safe to call when nothing was extracted.
func CleanupBridge() error {
	if extractedScriptPath == "" {
		return nil
	}
	return os.RemoveAll(filepath.Dir(extractedScriptPath))
}
