package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "naming.rego"), `# Service names must be short.
package shardctl.naming

deny contains "too long" if { some svc in input.services; count(svc.name) > 20 }
`)
	writeFile(t, filepath.Join(dir, "nested", "advice.rego"), `# Advisory checks.
# severity: warning
package shardctl.advice

deny contains "advice" if { false }
`)
	writeFile(t, filepath.Join(dir, "naming_test.rego"), "package shardctl.naming_test\n")
	writeFile(t, filepath.Join(dir, "README.md"), "not a policy")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}

	byName := map[string]Policy{}
	for _, p := range policies {
		byName[p.Name] = p
	}

	naming, ok := byName["naming"]
	if !ok {
		t.Fatal("naming policy not loaded")
	}
	if naming.Severity != SeverityError {
		t.Errorf("expected default error severity, got %s", naming.Severity)
	}
	if naming.Description != "Service names must be short." {
		t.Errorf("unexpected description %q", naming.Description)
	}
	if !naming.Enabled || naming.Source == "" {
		t.Errorf("unexpected policy: %+v", naming)
	}

	if advice := byName["advice"]; advice.Severity != SeverityWarning || advice.Description != "Advisory checks." {
		t.Errorf("unexpected advice policy: %+v", advice)
	}
}

func TestLoaderErrors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing.rego")}); err == nil {
		t.Error("expected error for missing path")
	}

	txt := filepath.Join(t.TempDir(), "policy.txt")
	writeFile(t, txt, "package x")
	if _, err := loader.LoadFromPaths(context.Background(), []string{txt}); err == nil {
		t.Error("expected error for unsupported file type")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deny-all.rego")
	writeFile(t, path, `package shardctl.denyall

deny contains "nothing may run" if { input.operation == "setup" }
`)

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	result, err := e.Evaluate(context.Background(), nil, "setup")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed || len(result.Violations) != 1 || result.Violations[0].Policy != "deny-all" {
		t.Errorf("unexpected result: %+v", result)
	}
}
