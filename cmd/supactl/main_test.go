package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/supactl/internal/journal"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

// writeCallFixture builds a config file pointing at a fake tool script.
func writeCallFixture(t *testing.T, script string, journalEnabled bool) (configPath, journalPath string) {
	t.Helper()

	tmpDir := t.TempDir()
	toolPath := filepath.Join(tmpDir, "fake-tool")
	if err := os.WriteFile(toolPath, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	journalPath = filepath.Join(tmpDir, "journal.db")
	enabled := "false"
	if journalEnabled {
		enabled = "true"
	}
	configYAML := `
connector:
  binary: ` + toolPath + `
journal:
  enabled: ` + enabled + `
  path: ` + journalPath + `
`
	configPath = filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, journalPath
}

func TestPrintUsageListsCommands(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})

	for _, want := range []string{"call <operation>", "docs <query>", "ops list", "journal list", "relay start", "doctor"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("usage missing %q: %s", want, stdout)
		}
	}
}

func TestSplitOperation(t *testing.T) {
	op, rest := splitOperation([]string{"execute_sql", "--input", "{}"})
	if op != "execute_sql" {
		t.Fatalf("operation = %q", op)
	}
	if len(rest) != 2 {
		t.Fatalf("rest = %v", rest)
	}

	op, rest = splitOperation([]string{"--input", "{}"})
	if op != "" {
		t.Fatalf("expected empty operation, got %q", op)
	}
	if len(rest) != 2 {
		t.Fatalf("rest = %v", rest)
	}
}

func TestRunCallWithoutOperation(t *testing.T) {
	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCall(nil)
	})
	if code != 1 {
		t.Fatalf("runCall() code = %d, want 1", code)
	}
}

func TestRunCallInvalidInput(t *testing.T) {
	configPath, _ := writeCallFixture(t, `printf '{}'`, false)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCall([]string{"execute_sql", "--config", configPath, "--input", "not json"})
	})
	if code != 1 {
		t.Fatalf("runCall() code = %d, want 1, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "Invalid --input") {
		t.Fatalf("stderr missing input error: %s", stderr)
	}
}

func TestRunCallSuccess(t *testing.T) {
	configPath, _ := writeCallFixture(t, `printf '{"rows": [], "ok": true}'`, false)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCall([]string{"execute_sql", "--config", configPath, "--input", `{"query": "select 1"}`})
	})
	if code != 0 {
		t.Fatalf("runCall() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"ok": true`) {
		t.Fatalf("stdout missing result: %s", stdout)
	}
}

func TestRunCallRemoteFailure(t *testing.T) {
	configPath, _ := writeCallFixture(t, `printf '{"error": "permission denied", "returncode": 13}'; exit 1`, false)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCall([]string{"execute_sql", "--config", configPath})
	})
	if code != exitDispatchError {
		t.Fatalf("runCall() code = %d, want %d", code, exitDispatchError)
	}
	if !strings.Contains(stderr, "permission denied") {
		t.Fatalf("stderr missing remote message: %s", stderr)
	}
}

func TestRunCallRecordsJournal(t *testing.T) {
	configPath, journalPath := writeCallFixture(t, `printf '{"organizations": []}'`, true)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCall([]string{"list_organizations", "--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runCall() code = %d, stderr: %s", code, stderr)
	}

	db, err := journal.OpenSQLite(context.Background(), journalPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(entries))
	}
	if entries[0].Operation != "list_organizations" {
		t.Fatalf("journal operation = %q", entries[0].Operation)
	}
	if entries[0].Status != journal.StatusOK {
		t.Fatalf("journal status = %q", entries[0].Status)
	}
}

func TestRunDocsWithoutQuery(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runDocs(nil)
	})
	if code != 1 {
		t.Fatalf("runDocs() code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Usage: supactl docs <query>") {
		t.Fatalf("expected usage text, got: %s", stdout)
	}
}

func TestRunDocsSearch(t *testing.T) {
	configPath, _ := writeCallFixture(t,
		`printf '{"searchDocs":{"nodes":[{"title":"Row Level Security","href":"https://supabase.com/docs/guides/auth/row-level-security"}]}}'`,
		false)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDocs([]string{"row level security", "--config", configPath, "--limit", "3"})
	})
	if code != 0 {
		t.Fatalf("runDocs() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Row Level Security") {
		t.Fatalf("expected result title, got: %s", stdout)
	}
	if !strings.Contains(stdout, "https://supabase.com/docs/guides/auth/row-level-security") {
		t.Fatalf("expected result href, got: %s", stdout)
	}
}

func TestRunDocsDispatchFailure(t *testing.T) {
	configPath, _ := writeCallFixture(t,
		`printf '{"error": "rate limited", "returncode": 1}'; exit 1`,
		false)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runDocs([]string{"branching", "--config", configPath})
	})
	if code != exitDispatchError {
		t.Fatalf("runDocs() code = %d, want %d", code, exitDispatchError)
	}
	if !strings.Contains(stderr, "rate limited") {
		t.Fatalf("expected remote message on stderr, got: %s", stderr)
	}
}

func TestRunOpsListText(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runOpsList(nil)
	})
	if code != 0 {
		t.Fatalf("runOpsList() code = %d, stderr: %s", code, stderr)
	}
	for _, want := range []string{"execute_sql", "list_organizations", "search_docs", "deploy_edge_function"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("ops list missing %q: %s", want, stdout)
		}
	}
}

func TestRunOpsListJSON(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runOpsList([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runOpsList() code = %d, stderr: %s", code, stderr)
	}

	var out struct {
		Operations []struct {
			Name  string `json:"name"`
			Group string `json:"group"`
		} `json:"operations"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse ops json: %v\noutput=%s", err, stdout)
	}
	if len(out.Operations) != 29 {
		t.Fatalf("expected 29 operations, got %d", len(out.Operations))
	}
}

func TestRunOpsListGroupFilter(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runOpsList([]string{"--group", "branch"})
	})
	if code != 0 {
		t.Fatalf("runOpsList() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "create_branch") {
		t.Fatalf("branch group missing create_branch: %s", stdout)
	}
	if strings.Contains(stdout, "execute_sql") {
		t.Fatalf("branch group should not list database operations: %s", stdout)
	}
}

func TestRunOpsListUnknownGroup(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runOpsList([]string{"--group", "nonsense"})
	})
	if code != 1 {
		t.Fatalf("runOpsList() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown group") {
		t.Fatalf("stderr missing group error: %s", stderr)
	}
}

func TestRunJournalListDisabled(t *testing.T) {
	configPath, _ := writeCallFixture(t, `exit 0`, false)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runJournalList([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runJournalList() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "disabled") {
		t.Fatalf("stderr missing disabled message: %s", stderr)
	}
}

func TestRunJournalListShowsEntries(t *testing.T) {
	configPath, journalPath := writeCallFixture(t, `printf '{}'`, true)

	db, err := journal.OpenSQLite(context.Background(), journalPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := journal.New(db).Record(context.Background(), journal.NewEntry("get_project", nil, 0, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = db.Close()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runJournalList([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runJournalList() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "get_project") {
		t.Fatalf("stdout missing journal entry: %s", stdout)
	}
}

func TestRunRelayStartDisabled(t *testing.T) {
	configPath, _ := writeCallFixture(t, `exit 0`, false)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runRelayStart([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runRelayStart() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "disabled") {
		t.Fatalf("stderr missing disabled message: %s", stderr)
	}
}

func TestRunConfigNounHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"--help"})
	})
	if code != 0 {
		t.Fatalf("runConfigNoun() code = %d", code)
	}
	if !strings.Contains(stdout, "Usage: supactl config <action>") {
		t.Fatalf("stdout missing config usage: %s", stdout)
	}
}

func TestRunConfigLockAndCheck(t *testing.T) {
	configPath, _ := writeCallFixture(t, `exit 0`, false)

	lockCode, lockStdout, lockStderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if lockCode != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", lockCode, lockStderr)
	}
	if !strings.Contains(lockStdout, "Config locked") {
		t.Fatalf("stdout missing lock confirmation: %s", lockStdout)
	}

	checkCode, _, checkStderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if checkCode != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", checkCode, checkStderr)
	}

	// Tamper with the locked file.
	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, append(raw, []byte("\nlog:\n  level: debug\n")...), 0o644); err != nil {
		t.Fatal(err)
	}

	tamperedCode, _, tamperedStderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if tamperedCode != 1 {
		t.Fatalf("runConfigCheck() code = %d after tamper, want 1", tamperedCode)
	}
	if !strings.Contains(tamperedStderr, "Integrity check failed") {
		t.Fatalf("stderr missing integrity failure: %s", tamperedStderr)
	}
}

func TestRunConfigShow(t *testing.T) {
	configPath, _ := writeCallFixture(t, `exit 0`, false)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "fake-tool") {
		t.Fatalf("stdout missing configured binary: %s", stdout)
	}
	if !strings.Contains(stdout, "server: supabase") {
		t.Fatalf("stdout missing defaulted server: %s", stdout)
	}
}

func TestRunDoctorJSON(t *testing.T) {
	configPath, _ := writeCallFixture(t, `exit 0`, true)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runDoctor() code = %d, stderr: %s\nstdout: %s", code, stderr, stdout)
	}

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse doctor json: %v\noutput=%s", err, stdout)
	}
	if !out.Valid {
		t.Fatalf("doctor should pass with executable binary, output=%s", stdout)
	}
}
