// Package config loads strand.toml, the optional file that sets defaults for
// the scheduler, the demo workload, sweeps and tracing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"strand/internal/asyncrt"
	"strand/internal/trace"
	"strand/internal/workload"
)

// FileName is the name searched for by Find.
const FileName = "strand.toml"

// ErrInvalid wraps every validation problem of a config file.
var ErrInvalid = errors.New("invalid config")

// Scheduling modes.
const (
	ModeFIFO = "fifo"
	ModeFuzz = "fuzz"
)

// File mirrors the layout of strand.toml.
type File struct {
	Scheduler SchedulerConfig `toml:"scheduler"`
	Workload  WorkloadConfig  `toml:"workload"`
	Sweep     SweepConfig     `toml:"sweep"`
	Trace     TraceConfig     `toml:"trace"`
}

type SchedulerConfig struct {
	Mode string `toml:"mode"`
	Seed uint64 `toml:"seed"`
}

type WorkloadConfig struct {
	Workers    int `toml:"workers"`
	Yields     int `toml:"yields"`
	Joiners    int `toml:"joiners"`
	Stragglers int `toml:"stragglers"`
	ExitCode   int `toml:"exit_code"`
}

type SweepConfig struct {
	Runs     int    `toml:"runs"`
	Jobs     int    `toml:"jobs"`
	BaseSeed uint64 `toml:"base_seed"`
	Report   string `toml:"report"`
}

type TraceConfig struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Output string `toml:"output"`
}

// Loaded is a parsed config together with where it came from. Path is empty
// when no file was found and Defaults were used.
type Loaded struct {
	Path string
	Root string
	File File
}

// Defaults returns the configuration used without a strand.toml.
func Defaults() File {
	scenario := workload.DefaultScenario
	return File{
		Scheduler: SchedulerConfig{Mode: ModeFIFO, Seed: 1},
		Workload: WorkloadConfig{
			Workers:    scenario.Workers,
			Yields:     scenario.Yields,
			Joiners:    scenario.Joiners,
			Stragglers: scenario.Stragglers,
			ExitCode:   int(scenario.ExitCode),
		},
		Sweep: SweepConfig{Runs: 64, BaseSeed: 1},
		Trace: TraceConfig{Level: "off", Mode: "stream"},
	}
}

// Find walks from startDir up to the filesystem root looking for strand.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest strand.toml above startDir, or Defaults if none
// exists.
func Discover(startDir string) (*Loaded, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Loaded{File: Defaults()}, nil
	}
	return Load(path)
}

// Load parses the file at path. Keys absent from the file keep their
// default values.
func Load(path string) (*Loaded, error) {
	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("%s: %w: unknown keys %s", path, ErrInvalid, strings.Join(keys, ", "))
	}
	if meta.IsDefined("scheduler", "mode") {
		cfg.Scheduler.Mode = strings.ToLower(strings.TrimSpace(cfg.Scheduler.Mode))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Loaded{Path: path, Root: filepath.Dir(path), File: cfg}, nil
}

// Validate reports every problem in f at once.
func (f File) Validate() error {
	var errs *multierror.Error
	switch f.Scheduler.Mode {
	case ModeFIFO, ModeFuzz:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: [scheduler].mode must be fifo or fuzz, got %q", ErrInvalid, f.Scheduler.Mode))
	}
	if _, err := f.Scenario(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if f.Sweep.Runs < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: [sweep].runs must be >= 0, got %d", ErrInvalid, f.Sweep.Runs))
	}
	if f.Sweep.Jobs < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: [sweep].jobs must be >= 0, got %d", ErrInvalid, f.Sweep.Jobs))
	}
	if _, err := trace.ParseLevel(f.Trace.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: [trace].level: %v", ErrInvalid, err))
	}
	if _, err := trace.ParseMode(f.Trace.Mode); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: [trace].mode: %v", ErrInvalid, err))
	}
	return errs.ErrorOrNil()
}

// Scenario converts the [workload] section.
func (f File) Scenario() (workload.Scenario, error) {
	code, err := safecast.Conv[uint8](f.Workload.ExitCode)
	if err != nil {
		return workload.Scenario{}, fmt.Errorf("%w: [workload].exit_code must be in 0..255, got %d", ErrInvalid, f.Workload.ExitCode)
	}
	scenario := workload.Scenario{
		Workers:    f.Workload.Workers,
		Yields:     f.Workload.Yields,
		Joiners:    f.Workload.Joiners,
		Stragglers: f.Workload.Stragglers,
		ExitCode:   code,
	}
	if err := scenario.Validate(); err != nil {
		return workload.Scenario{}, err
	}
	return scenario, nil
}

// Executor converts the [scheduler] section.
func (f File) Executor() asyncrt.Config {
	if f.Scheduler.Mode == ModeFuzz {
		return asyncrt.Config{Fuzz: true, Seed: f.Scheduler.Seed}
	}
	return asyncrt.Config{Deterministic: true, Seed: f.Scheduler.Seed}
}
