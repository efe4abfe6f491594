package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// SetEntry writes or updates KEY=VALUE in a .env file. Entries are rewritten
// in sorted order; comments are not preserved.
func SetEntry(path, key, value string) error {
	entries, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read dotenv: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	entries[key] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dotenv directory: %w", err)
	}
	if err := godotenv.Write(entries, path); err != nil {
		return fmt.Errorf("write dotenv: %w", err)
	}
	return os.Chmod(path, 0o600)
}
