package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// AuthKind distinguishes between API key and Bearer token auth.
type AuthKind int

const (
	AuthAPIKey AuthKind = iota
	AuthBearerToken
)

// ResolvedAuth holds the resolved credentials and their kind.
type ResolvedAuth struct {
	Kind  AuthKind
	Value string
}

// driverEnv maps a driver to the environment variable holding its key.
var driverEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// CredentialError reports a credential that is missing or unusable.
type CredentialError struct {
	Driver string
	EnvVar string
	Err    error // set when a configured value could not be revealed
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s credential: %v", e.Driver, e.Err)
	}
	return e.EnvVar + " not set"
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Hint tells an operator how to provide the credential.
func (e *CredentialError) Hint() string {
	if e.Err != nil {
		return fmt.Sprintf("check the %s api_key in %s and the age key at %s", e.Driver, config.ConfigPath(), secrets.KeyPath())
	}
	return fmt.Sprintf("Missing %s - make sure to add it to %s", e.EnvVar, config.DotenvPath())
}

// ResolveAuth resolves the credentials for a provider.
// Resolution order: direct token → direct api_key → driver default env.
// Values may be ${VAR} references or ENC[age:...] blobs.
func ResolveAuth(cfg config.ProviderConfig, keyring *secrets.Keyring) (ResolvedAuth, error) {
	driver := strings.ToLower(cfg.Driver)
	envVar, known := driverEnv[driver]

	resolve := func(raw string) (string, error) {
		v := strings.TrimSpace(raw)
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = strings.TrimSpace(os.Getenv(v[2 : len(v)-1]))
		}
		if !secrets.IsEncrypted(v) {
			return v, nil
		}
		if keyring == nil {
			return "", &CredentialError{Driver: driver, EnvVar: envVar, Err: fmt.Errorf("encrypted value but no age key loaded")}
		}
		plain, err := keyring.Reveal(v)
		if err != nil {
			return "", &CredentialError{Driver: driver, EnvVar: envVar, Err: err}
		}
		return plain, nil
	}

	token, err := resolve(cfg.Auth.Token)
	if err != nil {
		return ResolvedAuth{}, err
	}
	if token != "" {
		return ResolvedAuth{Kind: AuthBearerToken, Value: token}, nil
	}

	apiKey, err := resolve(cfg.Auth.APIKey)
	if err != nil {
		return ResolvedAuth{}, err
	}
	if apiKey != "" {
		return ResolvedAuth{Kind: AuthAPIKey, Value: apiKey}, nil
	}

	if !known {
		return ResolvedAuth{}, fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	key, err := resolve(os.Getenv(envVar))
	if err != nil {
		return ResolvedAuth{}, err
	}
	if key == "" {
		return ResolvedAuth{}, &CredentialError{Driver: driver, EnvVar: envVar}
	}
	return ResolvedAuth{Kind: AuthAPIKey, Value: key}, nil
}
