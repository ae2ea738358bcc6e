package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "feedpush.yaml")
	body := "feed:\n  url: https://bbs.example.com/rss.xml\nstorage:\n  path: " + filepath.Join(dir, "state.json") + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStateSetAndShow(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "state", "show")
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, "watermark: none") {
		t.Fatalf("fresh state output = %q", out)
	}

	if _, err := execute(t, "--config", cfg, "state", "set", "4242"); err != nil {
		t.Fatalf("state set: %v", err)
	}
	out, err = execute(t, "--config", cfg, "state", "show")
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, "watermark: 4242") {
		t.Fatalf("output = %q, want watermark 4242", out)
	}

	// Moving backwards is allowed.
	if _, err := execute(t, "--config", cfg, "state", "set", "7"); err != nil {
		t.Fatalf("state set: %v", err)
	}
	out, _ = execute(t, "--config", cfg, "state", "show")
	if !strings.Contains(out, "watermark: 7") {
		t.Fatalf("output = %q, want watermark 7", out)
	}
}

func TestStateSetRejectsBadID(t *testing.T) {
	cfg := writeConfig(t)
	for _, arg := range []string{"abc", "-3"} {
		if _, err := execute(t, "--config", cfg, "state", "set", "--", arg); err == nil {
			t.Errorf("state set %q: expected error", arg)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "feedpush dev") {
		t.Fatalf("version output = %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := execute(t, "bogus"); err == nil {
		t.Fatal("expected an error for unknown command")
	}
}
