package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattjoyce/supactl/internal/config"
)

// fakeBinary drops an executable on a temp PATH and returns its name.
func fakeBinary(t *testing.T, name string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Defaults()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "data", "journal.db")
	return cfg
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidateHealthyEnvironment(t *testing.T) {
	fakeBinary(t, "manus-mcp-cli")
	t.Setenv("SUPABASE_ACCESS_TOKEN", "sbp_test")

	result := New(testConfig(t)).Validate()
	if !result.Valid {
		t.Fatalf("expected valid result, got errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestValidateMissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := testConfig(t)
	cfg.Connector.Binary = "definitely-not-installed"

	result := New(cfg).Validate()
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if !hasIssue(result.Errors, "connector.binary") {
		t.Errorf("expected a connector.binary error, got: %+v", result.Errors)
	}
}

func TestValidateMissingTokenWarnsOnly(t *testing.T) {
	fakeBinary(t, "manus-mcp-cli")
	t.Setenv("SUPABASE_ACCESS_TOKEN", "")

	result := New(testConfig(t)).Validate()
	if !result.Valid {
		t.Fatalf("missing token must not be an error: %+v", result.Errors)
	}
	if !hasIssue(result.Warnings, "connector.access_token_env") {
		t.Errorf("expected an access token warning, got: %+v", result.Warnings)
	}
}

func TestValidateBadConnectorFields(t *testing.T) {
	fakeBinary(t, "manus-mcp-cli")

	cfg := testConfig(t)
	cfg.Connector.Timeout = 0
	cfg.Connector.Server = ""

	result := New(cfg).Validate()
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if !hasIssue(result.Errors, "connector.timeout") {
		t.Errorf("expected a timeout error, got: %+v", result.Errors)
	}
	if !hasIssue(result.Errors, "connector.server") {
		t.Errorf("expected a server error, got: %+v", result.Errors)
	}
}

func TestValidateRelayEnabledWithoutKey(t *testing.T) {
	fakeBinary(t, "manus-mcp-cli")

	cfg := testConfig(t)
	cfg.Relay.Enabled = true
	cfg.Relay.Auth.APIKey = ""

	result := New(cfg).Validate()
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if !hasIssue(result.Errors, "relay.auth.api_key") {
		t.Errorf("expected an api_key error, got: %+v", result.Errors)
	}
}

func TestValidateJournalDisabledSkipsPathCheck(t *testing.T) {
	fakeBinary(t, "manus-mcp-cli")

	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	cfg.Journal.Path = ""

	result := New(cfg).Validate()
	if !result.Valid {
		t.Fatalf("disabled journal must not require a path: %+v", result.Errors)
	}
}
