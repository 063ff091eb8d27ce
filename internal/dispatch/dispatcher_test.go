package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/supactl/internal/jval"
	"github.com/mattjoyce/supactl/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// createTestTool writes an executable shell script standing in for the
// external management tool and returns its path.
func createTestTool(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-mcp-cli")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write test tool: %v", err)
	}
	return path
}

func newTestDispatcher(t *testing.T, script string) *Dispatcher {
	t.Helper()
	return New(Options{
		Binary:  createTestTool(t, script),
		Server:  "supabase",
		Timeout: 5 * time.Second,
	})
}

func asDispatchError(t *testing.T, err error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *dispatch.Error, got %T: %v", err, err)
	}
	return de
}

func TestInvokePassThrough(t *testing.T) {
	d := newTestDispatcher(t, `echo '{"ok": true}'`)

	out, err := d.Invoke(context.Background(), "list_projects", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"ok": true}` {
		t.Errorf("output not passed through unchanged: %s", out)
	}
}

func TestInvokeListOrganizations(t *testing.T) {
	d := newTestDispatcher(t, `echo '{"organizations": []}'`)

	out, err := d.Invoke(context.Background(), "list_organizations", jval.Object())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"organizations": []}` {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestInvokeRemoteErrorPassThrough(t *testing.T) {
	d := newTestDispatcher(t, `echo '{"error": "syntax error", "returncode": 1}'; exit 1`)

	args := jval.Object().
		Set("project_id", jval.String("p1")).
		Set("query", jval.String("bad sql"))

	_, err := d.Invoke(context.Background(), "execute_sql", args)
	de := asDispatchError(t, err)

	if de.Kind != KindRemote {
		t.Errorf("expected remote kind, got %q", de.Kind)
	}
	if de.Message != "syntax error" {
		t.Errorf("expected message passed through verbatim, got %q", de.Message)
	}
	if de.Code != 1 {
		t.Errorf("expected code 1, got %d", de.Code)
	}
}

func TestInvokeExitCodePassThrough(t *testing.T) {
	for _, code := range []int{1, 2, 42} {
		d := newTestDispatcher(t, fmt.Sprintf("exit %d", code))

		_, err := d.Invoke(context.Background(), "get_project", nil)
		de := asDispatchError(t, err)

		if de.Kind != KindRemote {
			t.Errorf("exit %d: expected remote kind, got %q", code, de.Kind)
		}
		if de.Code != code {
			t.Errorf("exit %d: expected code %d, got %d", code, code, de.Code)
		}
	}
}

func TestInvokeRemoteErrorFromStderr(t *testing.T) {
	d := newTestDispatcher(t, `echo 'Unauthorized: access token not provided' >&2; exit 3`)

	_, err := d.Invoke(context.Background(), "list_projects", nil)
	de := asDispatchError(t, err)

	if de.Kind != KindRemote {
		t.Errorf("expected remote kind, got %q", de.Kind)
	}
	if de.Code != 3 {
		t.Errorf("expected code 3, got %d", de.Code)
	}
	if de.Message != "Unauthorized: access token not provided" {
		t.Errorf("expected stderr text as message, got %q", de.Message)
	}
}

func TestInvokeTimeout(t *testing.T) {
	tool := createTestTool(t, "sleep 10")
	d := New(Options{
		Binary:      tool,
		Server:      "supabase",
		Timeout:     200 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err := d.Invoke(context.Background(), "get_logs", nil)
	elapsed := time.Since(start)

	de := asDispatchError(t, err)
	if de.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %q", de.Kind)
	}
	if de.Code != CodeTimeout {
		t.Errorf("expected code %d, got %d", CodeTimeout, de.Code)
	}
	// Must not block much past timeout + grace.
	if elapsed > 2*time.Second {
		t.Errorf("invoke blocked for %v, expected prompt return after timeout", elapsed)
	}
}

func TestInvokeContextCancel(t *testing.T) {
	tool := createTestTool(t, "sleep 10")
	d := New(Options{
		Binary:      tool,
		Server:      "supabase",
		Timeout:     5 * time.Second,
		GracePeriod: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := d.Invoke(ctx, "get_logs", nil)
	de := asDispatchError(t, err)

	if de.Kind != KindTimeout {
		t.Errorf("expected timeout kind on cancellation, got %q", de.Kind)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("invoke blocked for %v after cancel", elapsed)
	}
}

// A tool that spawns its own children must not outlive the bound: the
// children inherit the output pipes, and a survivor would keep the
// wait open long after the direct child is gone.
func TestInvokeTimeoutKillsChildProcesses(t *testing.T) {
	tool := createTestTool(t, "sleep 10 &\nsleep 10")
	d := New(Options{
		Binary:      tool,
		Server:      "supabase",
		Timeout:     200 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err := d.Invoke(context.Background(), "get_logs", nil)
	elapsed := time.Since(start)

	de := asDispatchError(t, err)
	if de.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %q", de.Kind)
	}
	if elapsed > 2*time.Second {
		t.Errorf("invoke blocked for %v, child processes not terminated", elapsed)
	}
}

func TestInvokeTimeoutEscalatesToSigkill(t *testing.T) {
	tool := createTestTool(t, "trap '' TERM\nsleep 10")
	d := New(Options{
		Binary:      tool,
		Server:      "supabase",
		Timeout:     200 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err := d.Invoke(context.Background(), "get_logs", nil)
	elapsed := time.Since(start)

	de := asDispatchError(t, err)
	if de.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %q", de.Kind)
	}
	if elapsed > 2*time.Second {
		t.Errorf("invoke blocked for %v, SIGKILL escalation did not take", elapsed)
	}
}

func TestInvokeDecodeError(t *testing.T) {
	d := newTestDispatcher(t, `echo 'this is not json'`)

	_, err := d.Invoke(context.Background(), "list_tables", nil)
	de := asDispatchError(t, err)

	if de.Kind != KindDecode {
		t.Errorf("expected decode kind, got %q", de.Kind)
	}
	if de.Code != CodeDecode {
		t.Errorf("expected code %d, got %d", CodeDecode, de.Code)
	}
}

func TestInvokeEmptyOutput(t *testing.T) {
	d := newTestDispatcher(t, `exit 0`)

	_, err := d.Invoke(context.Background(), "list_tables", nil)
	de := asDispatchError(t, err)

	if de.Kind != KindDecode {
		t.Errorf("expected decode kind for empty stdout, got %q", de.Kind)
	}
}

func TestInvokeBinaryNotFound(t *testing.T) {
	d := New(Options{
		Binary:  filepath.Join(t.TempDir(), "no-such-binary"),
		Server:  "supabase",
		Timeout: time.Second,
	})

	_, err := d.Invoke(context.Background(), "list_projects", nil)
	de := asDispatchError(t, err)

	if de.Kind != KindInvocation {
		t.Errorf("expected invocation kind, got %q", de.Kind)
	}
	if de.Code != CodeInvocation {
		t.Errorf("expected code %d, got %d", CodeInvocation, de.Code)
	}
}

func TestInvokeRejectsBadRequests(t *testing.T) {
	d := newTestDispatcher(t, `echo '{}'`)

	tests := []struct {
		name      string
		operation string
		args      *jval.Value
	}{
		{name: "empty operation", operation: "", args: nil},
		{name: "unknown operation", operation: "drop_everything", args: nil},
		{name: "non-object arguments", operation: "list_projects", args: jval.String("nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Invoke(context.Background(), tt.operation, tt.args)
			de := asDispatchError(t, err)
			if de.Kind != KindInvocation {
				t.Errorf("expected invocation kind, got %q", de.Kind)
			}
		})
	}
}

func TestInvokeArgumentPayload(t *testing.T) {
	// The tool echoes its --input value back so we can check the payload.
	d := newTestDispatcher(t, `printf '{"echo": %s}' "$7"`)

	args := jval.Object().
		Set("project_id", jval.String("p1")).
		Set("schemas", jval.Array(jval.String("public")))

	out, err := d.Invoke(context.Background(), "list_tables", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Echo map[string]any `json:"echo"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if got.Echo["project_id"] != "p1" {
		t.Errorf("payload missing project_id: %s", out)
	}
}

func TestInvokeIdempotent(t *testing.T) {
	d := newTestDispatcher(t, `echo '{"projects": [{"id": "p1"}]}'`)

	args := jval.Object().Set("id", jval.String("p1"))

	first, err1 := d.Invoke(context.Background(), "get_project", args)
	second, err2 := d.Invoke(context.Background(), "get_project", args)

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if string(first) != string(second) {
		t.Errorf("identical calls returned different results: %s vs %s", first, second)
	}
}

func TestDispatcherDefaults(t *testing.T) {
	d := New(Options{Binary: "manus-mcp-cli", Server: "supabase"})
	if d.Timeout() != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, d.Timeout())
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindRemote, Code: 1, Message: "syntax error"}
	want := "remote error (code 1): syntax error"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}
