package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strand/internal/workload"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, `
[scheduler]
mode = "FUZZ"
seed = 42

[workload]
workers = 4
exit_code = 3
`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	loaded, err := Discover(nested)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if loaded.Path != path || loaded.Root != root {
		t.Fatalf("unexpected location %q (root %q)", loaded.Path, loaded.Root)
	}
	exec := loaded.File.Executor()
	if !exec.Fuzz || exec.Seed != 42 {
		t.Fatalf("unexpected executor config %+v", exec)
	}
	scenario, err := loaded.File.Scenario()
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	want := workload.DefaultScenario
	want.Workers = 4
	want.ExitCode = 3
	if scenario != want {
		t.Fatalf("want %+v, got %+v", want, scenario)
	}
}

func TestDiscoverWithoutFileUsesDefaults(t *testing.T) {
	loaded, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if loaded.Path != "" {
		t.Skipf("a %s above the temp dir shadows defaults: %s", FileName, loaded.Path)
	}
	if loaded.File != Defaults() {
		t.Fatalf("want defaults, got %+v", loaded.File)
	}
	if err := loaded.File.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[workload]
workerz = 3
`)
	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "workload.workerz") {
		t.Fatalf("want unknown key error, got %v", err)
	}
}

func TestLoadReportsEveryProblem(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[scheduler]
mode = "lifo"

[workload]
exit_code = 300

[trace]
level = "loud"
`)
	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	for _, fragment := range []string{"[scheduler].mode", "[workload].exit_code", "[trace].level"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q does not mention %s", err, fragment)
		}
	}
}

func TestLoadRejectsInvalidWorkload(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[workload]
workers = 0
`)
	if _, err := Load(path); !errors.Is(err, workload.ErrInvalidScenario) {
		t.Fatalf("want ErrInvalidScenario, got %v", err)
	}
}

func TestLoadParseError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[scheduler\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "failed to parse TOML") {
		t.Fatalf("want parse error, got %v", err)
	}
}
