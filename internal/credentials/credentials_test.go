package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

// skipIfKeychain skips tests whose outcome a populated macOS Keychain would
// shadow.
func skipIfKeychain(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "darwin" {
		t.Skip("keychain may shadow the file source on darwin")
	}
}

func writeCredentialsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".credentials.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func TestStaticTokenWins(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	src := NewChainSource(Options{StaticToken: "static-token"}, zerolog.Nop())
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "static-token" {
		t.Fatalf("token = %q, want static-token", token)
	}
}

func TestEnvToken(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	src := NewChainSource(Options{}, zerolog.Nop())
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "env-token" {
		t.Fatalf("token = %q, want env-token", token)
	}
}

func TestFileToken(t *testing.T) {
	skipIfKeychain(t)
	t.Setenv(EnvToken, "")
	path := writeCredentialsFile(t, `{"claudeAiOauth":{"accessToken":"file-token","expiresAt":0}}`)
	src := NewChainSource(Options{File: path}, zerolog.Nop())
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "file-token" {
		t.Fatalf("token = %q, want file-token", token)
	}
}

func TestFileTokenMalformed(t *testing.T) {
	skipIfKeychain(t)
	t.Setenv(EnvToken, "")
	path := writeCredentialsFile(t, `not json`)
	src := NewChainSource(Options{File: path}, zerolog.Nop())
	if _, err := src.Token(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestMissingEverything(t *testing.T) {
	skipIfKeychain(t)
	t.Setenv(EnvToken, "")
	src := NewChainSource(Options{File: filepath.Join(t.TempDir(), "absent.json")}, zerolog.Nop())
	if _, err := src.Token(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestFilePathOverride(t *testing.T) {
	src := NewChainSource(Options{File: "/tmp/creds.json"}, zerolog.Nop())
	path, err := src.FilePath()
	if err != nil {
		t.Fatalf("FilePath: %v", err)
	}
	if path != "/tmp/creds.json" {
		t.Fatalf("path = %q", path)
	}
}
