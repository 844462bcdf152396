package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/memory"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupConfigDir(t *testing.T) (dir, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	dbPath = filepath.Join(dir, "memory.db")

	config.SetConfigDir(dir)
	cfg := config.DefaultConfig()
	cfg.Memory.DBPath = dbPath
	cfg.Log.Dir = filepath.Join(dir, "logs")
	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return dir, dbPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if out != "Shreya v"+version+"\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "chat": false, "config": false, "memory": false, "version": false}
	for _, c := range newRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigCommand(t *testing.T) {
	dir, _ := setupConfigDir(t)

	out, err := execute(t, "--config-dir", dir, "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(out, "gpt-4o-mini") {
		t.Errorf("config output missing model: %q", out)
	}
	if !strings.Contains(out, filepath.Join(dir, "config.yaml")) {
		t.Errorf("config output missing path: %q", out)
	}
}

func TestMemoryShowAndForget(t *testing.T) {
	dir, dbPath := setupConfigDir(t)

	store, err := memory.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	rec := &memory.Record{ID: "@amit:example.org", Memory: "User: hi\nBot: hello\n", Mood: "shy"}
	if err := store.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_ = store.Close()

	out, err := execute(t, "--config-dir", dir, "memory", "show", "@amit:example.org")
	if err != nil {
		t.Fatalf("memory show error = %v", err)
	}
	if !strings.Contains(out, "Mood: shy") || !strings.Contains(out, "User: hi\nBot: hello\n") {
		t.Errorf("memory show output = %q", out)
	}

	if _, err := execute(t, "--config-dir", dir, "memory", "forget", "@amit:example.org"); err != nil {
		t.Fatalf("memory forget error = %v", err)
	}

	out, err = execute(t, "--config-dir", dir, "memory", "show", "@amit:example.org")
	if err != nil {
		t.Fatalf("memory show error = %v", err)
	}
	if out != "No memory for @amit:example.org\n" {
		t.Errorf("memory show after forget = %q", out)
	}
}

func TestMemoryShow_RequiresArg(t *testing.T) {
	dir, _ := setupConfigDir(t)
	if _, err := execute(t, "--config-dir", dir, "memory", "show"); err == nil {
		t.Error("memory show without a user id should fail")
	}
}
