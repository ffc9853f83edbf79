package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
base_dir = %q
log_dir = %q

[fetch]
identifiers_file = %q
`, filepath.Join(base, "pipeline"), filepath.Join(base, "logs"), filepath.Join(base, "identifiers.json"))
	path := filepath.Join(base, "papermill.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := execute(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite must fail")
	}
	if _, err := execute(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestConfigShowRendersDefaults(t *testing.T) {
	out, err := execute(t, "config", "show", "-c", filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "showing defaults") || !strings.Contains(out, "[scheduler]") {
		t.Fatalf("output = %q", out)
	}
}

func TestStatusJSONOnEmptyPipeline(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "status", "--json", "-c", cfgPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse status output: %v\n%s", err, out)
	}
	if report.Progress.Finalized != 0 || len(report.Batches) != 0 {
		t.Fatalf("report = %+v", report)
	}
}
