package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const tokenDirName = ".donornet/tokens"

// tokenDir is overridden in tests
var tokenDir = func() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, tokenDirName), nil
}

// tokenFile is the saved Google token of one environment
type tokenFile struct {
	dir  string
	path string
}

func tokenFileFor(env string) (tokenFile, error) {
	dir, err := tokenDir()
	if err != nil {
		return tokenFile{}, err
	}
	return tokenFile{dir: dir, path: filepath.Join(dir, "token-"+env+".json")}, nil
}

// load returns nil without error when nothing is saved
func (f tokenFile) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	token := new(oauth2.Token)
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return token, nil
}

func (f tokenFile) save(token *oauth2.Token) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (f tokenFile) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// ForgetGoogleToken drops env's Google token from memory and disk, so the
// next Google command asks for authorization again
func ForgetGoogleToken(env string) error {
	tokenCacheMu.Lock()
	delete(tokenCache, env)
	tokenCacheMu.Unlock()

	f, err := tokenFileFor(env)
	if err != nil {
		return err
	}
	return f.remove()
}
