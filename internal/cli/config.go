package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcoot/stakegame/internal/model"
)

// Config holds CLI configuration
type Config struct {
	ServerURL  string
	Token      string
	AdminToken string
	// StateDir holds the saved session token and pending commit secrets
	StateDir string
	Output   string
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:  getEnvOrDefault("STAKEGAME_SERVER", "http://localhost:8080"),
		Token:      os.Getenv("STAKEGAME_TOKEN"),
		AdminToken: os.Getenv("STAKEGAME_ADMIN_TOKEN"),
		StateDir:   getEnvOrDefault("STAKEGAME_STATE_DIR", defaultStateDir()),
		Output:     "text",
	}
}

func (c *Config) tokenFile() string {
	return filepath.Join(c.StateDir, "token")
}

// LoadToken loads the token from file if not already set
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.tokenFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // No token file is fine
		}
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken saves the token to the token file
func (c *Config) SaveToken(token string) error {
	c.Token = token
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile(), []byte(token), 0o600)
}

// PendingCommit is the secret half of a commitment, kept until reveal
type PendingCommit struct {
	MatchID string        `json:"match_id"`
	Round   int           `json:"round"`
	Move    model.RPSMove `json:"move"`
	Salt    string        `json:"salt"`
}

func (c *Config) commitFile(matchID string) string {
	return filepath.Join(c.StateDir, "commits", matchID+".json")
}

// SaveCommit stores the move and salt of a commitment for a later reveal
func (c *Config) SaveCommit(p PendingCommit) error {
	path := c.commitFile(p.MatchID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadCommit reads the saved commitment for a match
func (c *Config) LoadCommit(matchID string) (*PendingCommit, error) {
	data, err := os.ReadFile(c.commitFile(matchID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no saved commit for match %s, pass --move and --salt", matchID)
		}
		return nil, err
	}
	var p PendingCommit
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt commit file: %w", err)
	}
	return &p, nil
}

// ForgetCommit removes a commitment once it has been revealed
func (c *Config) ForgetCommit(matchID string) error {
	err := os.Remove(c.commitFile(matchID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stakegame"
	}
	return filepath.Join(home, ".stakegame")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
