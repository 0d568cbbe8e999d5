package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"enacthq/enact/pkg/governance"
	"enacthq/enact/pkg/policy"
)

const yamlDoc = `
default_allow: false
rules:
  - tool: "database"
    function: "select_.*"
    action: "allow"
    reason: "Read-only"
    id: "ro"
  - tool: "database"
    function: "drop_.*"
    agent_id: "admin_.*"
    action: "allow"
    reason: "Admins may drop"
`

const jsonDoc = `{
  "default_allow": true,
  "rules": [
    {"tool": "shell", "function": ".*", "action": "deny", "reason": "No shell access"}
  ]
}`

func request(agentID, tool, function string) *governance.Request {
	return &governance.Request{AgentID: agentID, ToolName: tool, FunctionName: function}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	p, err := Load(writeTemp(t, "policy.yaml", yamlDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := p.Evaluate(context.Background(), request("a1", "database", "select_users"))
	if !d.Allow || d.RuleID != "ro" {
		t.Errorf("expected Read-only allow, got %+v", d)
	}

	d = p.Evaluate(context.Background(), request("a1", "database", "drop_table"))
	if d.Allow {
		t.Error("non-admin drop should fall through to default deny")
	}

	d = p.Evaluate(context.Background(), request("admin_bob", "database", "drop_table"))
	if !d.Allow {
		t.Error("admin drop should be allowed")
	}
}

func TestLoad_JSON(t *testing.T) {
	p, err := Load(writeTemp(t, "policy.json", jsonDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := p.Evaluate(context.Background(), request("a1", "shell", "exec"))
	if d.Allow {
		t.Error("shell should be denied")
	}

	d = p.Evaluate(context.Background(), request("a1", "other", "anything"))
	if !d.Allow {
		t.Error("default allow should apply")
	}
}

func TestLoad_MissingAgentDefaults(t *testing.T) {
	p, err := Parse([]byte(`
default_allow: false
rules:
  - tool: "t"
    function: "f"
    action: "allow"
    reason: "any agent"
`), "inline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := p.Evaluate(context.Background(), request("whoever", "t", "f"))
	if !d.Allow {
		t.Error("missing agent_id should match any agent")
	}
}

func TestLoad_InvalidEntries(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad action", `{"rules": [{"tool": "t", "function": "f", "action": "sometimes", "reason": "r"}]}`},
		{"bad regex", `{"rules": [{"tool": "([", "function": "f", "action": "allow", "reason": "r"}]}`},
		{"not yaml", "{{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc), "inline"); err == nil {
				t.Error("expected parse to fail")
			}
		})
	}
}

func TestLoad_FileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeTemp(t, "policy.yaml", `
default_allow: false
rules:
  - tool: "db"
    function: ".*"
    action: "deny"
    reason: "locked down"
`)

	holder := policy.NewReloadable(nil)
	w, err := NewWatcher(WatcherConfig{Path: path, Debounce: 50 * time.Millisecond}, holder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	d := holder.Evaluate(context.Background(), request("a1", "db", "query"))
	if d.Allow {
		t.Fatal("initial policy should deny")
	}

	// Rewrite the file with an allow rule and wait out the debounce.
	if err := os.WriteFile(path, []byte(`
default_allow: false
rules:
  - tool: "db"
    function: ".*"
    action: "allow"
    reason: "opened up"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		d = holder.Evaluate(context.Background(), request("a1", "db", "query"))
		if d.Allow {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("policy was not reloaded after file change")
}

func TestWatcher_BadReloadKeepsOldPolicy(t *testing.T) {
	path := writeTemp(t, "policy.yaml", `
default_allow: true
rules: []
`)

	holder := policy.NewReloadable(nil)
	w, err := NewWatcher(WatcherConfig{Path: path, Debounce: 50 * time.Millisecond}, holder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("{{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	d := holder.Evaluate(context.Background(), request("a1", "db", "query"))
	if !d.Allow {
		t.Error("broken reload should keep the previous policy active")
	}
}
