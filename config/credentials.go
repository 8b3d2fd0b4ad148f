package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/compliancekit/errors"
)

// Credentials holds API keys read from a credentials.toml file.
//
//	[llm]
//	api_key = "used when no provider section matches"
//
//	[anthropic]
//	api_key = "sk-ant-..."
type Credentials struct {
	fallback  string
	providers map[string]string
}

// CredentialPaths returns the credential file locations, highest priority first.
func CredentialPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "compliancekit", "credentials.toml"))
	}
	return paths
}

// LoadCredentials reads the first credentials file found in CredentialPaths.
// A missing file is not an error; it returns nil credentials and an empty path.
func LoadCredentials() (*Credentials, string, error) {
	for _, path := range CredentialPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		creds, err := LoadCredentialsFile(path)
		return creds, path, err
	}
	return nil, "", nil
}

// LoadCredentialsFile reads path. On Unix the file must not be readable or
// writable by group or others.
func LoadCredentialsFile(path string) (*Credentials, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeNotFound, "reading credentials",
			errors.WithMetadata("path", path))
	}
	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, errors.Precondition("credentials file is accessible by group or others",
				errors.WithMetadata("path", path),
				errors.WithMetadata("mode", mode.String()))
		}
	}

	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parsing credentials",
			errors.WithMetadata("path", path))
	}

	creds := &Credentials{providers: make(map[string]string)}
	for name, v := range raw {
		section, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := section["api_key"].(string)
		if key == "" {
			continue
		}
		if name == "llm" {
			creds.fallback = key
			continue
		}
		creds.providers[normalizeProvider(name)] = key
	}
	return creds, nil
}

// APIKey returns the key for provider: its own section first, then [llm].
func (c *Credentials) APIKey(provider string) string {
	if c == nil {
		return ""
	}
	if key := c.providers[normalizeProvider(provider)]; key != "" {
		return key
	}
	return c.fallback
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), "-", ""))
}

// EnvVar returns the environment variable holding provider's API key.
// openai-compat shares OPENAI_API_KEY; anything else is <PROVIDER>_API_KEY.
func EnvVar(provider string) string {
	if provider == "openai-compat" {
		return "OPENAI_API_KEY"
	}
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}
