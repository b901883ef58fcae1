package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// EnvToken overrides every other source when set.
	EnvToken = "CLAUDE_CODE_OAUTH_TOKEN"

	keychainService = "Claude Code-credentials"
)

// ErrNotAuthenticated is returned when no source yields a usable token. The
// remedy is user action (run `claude` to authenticate), not a retry.
var ErrNotAuthenticated = errors.New("no credentials found; run 'claude' in a terminal to authenticate")

// Source yields a bearer token for the usage API.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Options tune credential resolution.
type Options struct {
	// StaticToken short-circuits resolution entirely, for testing and CI.
	StaticToken string
	// File overrides the default ~/.claude/.credentials.json location.
	File string
}

// ChainSource resolves a token from, in order: static config, the
// CLAUDE_CODE_OAUTH_TOKEN env var, the macOS Keychain, and the credentials
// file written by the Claude CLI.
type ChainSource struct {
	opts   Options
	logger zerolog.Logger
}

// NewChainSource constructs the default credential chain.
func NewChainSource(opts Options, logger zerolog.Logger) *ChainSource {
	return &ChainSource{
		opts:   opts,
		logger: logger.With().Str("component", "credentials").Logger(),
	}
}

// stored mirrors the credentials file / keychain payload shape.
type stored struct {
	ClaudeAiOauth struct {
		AccessToken string `json:"accessToken"`
		ExpiresAt   int64  `json:"expiresAt"`
	} `json:"claudeAiOauth"`
}

// Token resolves an access token or fails with ErrNotAuthenticated.
func (s *ChainSource) Token(ctx context.Context) (string, error) {
	if s.opts.StaticToken != "" {
		return s.opts.StaticToken, nil
	}
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	if runtime.GOOS == "darwin" {
		if token, err := s.fromKeychain(ctx); err == nil {
			return token, nil
		} else {
			s.logger.Debug().Err(err).Msg("keychain lookup failed, trying credentials file")
		}
	}

	token, err := s.fromFile()
	if err != nil {
		s.logger.Debug().Err(err).Msg("credentials file lookup failed")
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return token, nil
}

func (s *ChainSource) fromKeychain(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "security", "find-generic-password",
		"-s", keychainService, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("keychain: %w", err)
	}
	data := strings.TrimSpace(string(out))
	if data == "" {
		return "", errors.New("keychain: empty value")
	}

	var creds stored
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		// Some setups store the raw token string instead of JSON.
		return data, nil
	}
	if creds.ClaudeAiOauth.AccessToken == "" {
		return "", errors.New("keychain: no access token in payload")
	}
	return creds.ClaudeAiOauth.AccessToken, nil
}

func (s *ChainSource) fromFile() (string, error) {
	path, err := s.FilePath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var creds stored
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	if creds.ClaudeAiOauth.AccessToken == "" {
		return "", errors.New("credentials file has no access token")
	}
	return creds.ClaudeAiOauth.AccessToken, nil
}

// FilePath returns the credentials file this chain reads as its last resort.
func (s *ChainSource) FilePath() (string, error) {
	if s.opts.File != "" {
		return s.opts.File, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".claude", ".credentials.json"), nil
}

var _ Source = (*ChainSource)(nil)
