package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/switchmart/assistant-engine/internal/domain"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	return path
}

func TestLoadDotEnv_SetsAndQuotes(t *testing.T) {
	t.Setenv("DOTENV_TEST_PLAIN", "")
	t.Setenv("DOTENV_TEST_QUOTED", "")
	t.Setenv("DOTENV_TEST_EXPORTED", "")

	path := writeEnvFile(t, `
# comment
DOTENV_TEST_PLAIN=hello
DOTENV_TEST_QUOTED="quoted value"
export DOTENV_TEST_EXPORTED=yes
`)

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DOTENV_TEST_PLAIN"); got != "hello" {
		t.Errorf("plain: got %q", got)
	}
	if got := os.Getenv("DOTENV_TEST_QUOTED"); got != "quoted value" {
		t.Errorf("quoted: got %q", got)
	}
	if got := os.Getenv("DOTENV_TEST_EXPORTED"); got != "yes" {
		t.Errorf("exported: got %q", got)
	}
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("DOTENV_TEST_EXISTING", "from-env")

	path := writeEnvFile(t, "DOTENV_TEST_EXISTING=from-file\n")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DOTENV_TEST_EXISTING"); got != "from-env" {
		t.Errorf("environment must win over the file, got %q", got)
	}
}

func TestLoadDotEnv_ReportsMalformedLinesButAppliesTheRest(t *testing.T) {
	t.Setenv("DOTENV_TEST_GOOD", "")

	path := writeEnvFile(t, "no equals sign here\nDOTENV_TEST_GOOD=ok\n=missing-key\n")

	err := LoadDotEnv(path)
	var cfgErr *domain.ErrConfiguration
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := os.Getenv("DOTENV_TEST_GOOD"); got != "ok" {
		t.Errorf("parseable pairs must still apply, got %q", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
