package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotenv reads a .env file and sets environment variables that are not already defined.
// Missing file is silently ignored. Existing env vars are never overridden.
func LoadDotenv(path string) error {
	return ignoreMissing(godotenv.Load(path))
}

// ReloadDotenv reads a .env file and overrides any variable it defines.
func ReloadDotenv(path string) error {
	return ignoreMissing(godotenv.Overload(path))
}

func ignoreMissing(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
