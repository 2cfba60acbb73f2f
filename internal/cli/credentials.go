package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotLoggedIn = errors.New("not logged in: run `coin login`")

// Credentials are what `coin login` remembers between runs.
type Credentials struct {
	APIBaseURL string    `json:"api_base_url"`
	APIKey     string    `json:"api_key"`
	SavedAt    time.Time `json:"saved_at"`
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("credentials carry no api key")
	}
	if c.APIBaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("credentials carry a bad api base url %q", c.APIBaseURL)
	}
	return nil
}

// CredentialStore keeps one credentials.json inside a private directory.
type CredentialStore struct {
	path string
}

func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{path: filepath.Join(dir, "credentials.json")}
}

// DefaultCredentialStore uses $COIN_CONFIG_DIR, falling back to ~/.coin.
func DefaultCredentialStore() (*CredentialStore, error) {
	if dir := strings.TrimSpace(os.Getenv("COIN_CONFIG_DIR")); dir != "" {
		return NewCredentialStore(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locate home directory: %w", err)
	}
	return NewCredentialStore(filepath.Join(home, ".coin")), nil
}

func (s *CredentialStore) Path() string {
	return s.path
}

// Save replaces the stored credentials through a rename so a crash never
// leaves a half-written key behind.
func (s *CredentialStore) Save(c Credentials) error {
	if err := c.validate(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	body, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "credentials.*.tmp")
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("save credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) Load() (Credentials, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNotLoggedIn
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(body, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if err := c.validate(); err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return c, nil
}

// Clear forgets the stored credentials; clearing twice is not an error.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
