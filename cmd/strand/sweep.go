package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"strand/internal/config"
	"strand/internal/observ"
	"strand/internal/trace"
	"strand/internal/workload"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the workload under many fuzz seeds in parallel",
	Long: `Sweep runs the configured workload once per seed, starting at the base
seed, each run on its own scheduler with fuzz ordering. Every failing seed is
reported; a msgpack report of all runs can be written with --report.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().Int("runs", 0, "number of seeds to run")
	sweepCmd.Flags().Int("jobs", 0, "max parallel runs (0=auto)")
	sweepCmd.Flags().Uint64("base-seed", 0, "first seed")
	sweepCmd.Flags().String("report", "", "write a msgpack report of every run to this path")
	sweepCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func applySweepFlags(cmd *cobra.Command, file *config.File) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("runs") {
		if file.Sweep.Runs, err = flags.GetInt("runs"); err != nil {
			return err
		}
	}
	if flags.Changed("jobs") {
		if file.Sweep.Jobs, err = flags.GetInt("jobs"); err != nil {
			return err
		}
	}
	if flags.Changed("base-seed") {
		if file.Sweep.BaseSeed, err = flags.GetUint64("base-seed"); err != nil {
			return err
		}
	}
	if flags.Changed("report") {
		if file.Sweep.Report, err = flags.GetString("report"); err != nil {
			return err
		}
	}
	return file.Validate()
}

func runSweep(cmd *cobra.Command, args []string) (err error) {
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	timer := observ.NewTimer()
	if showTimings {
		defer func() { fmt.Fprint(cmd.ErrOrStderr(), timer.Summary()) }()
	}
	var loaded *config.Loaded
	if err := timer.Time("config", func() error {
		var loadErr error
		if loaded, loadErr = loadConfig(cmd); loadErr != nil {
			return loadErr
		}
		return applySweepFlags(cmd, &loaded.File)
	}); err != nil {
		return err
	}
	sess, err := setupTracing(cmd, loaded.File.Trace)
	if err != nil {
		return err
	}
	defer func() { sess.Close(cmd, err != nil) }()

	profiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling(cmd, profiling)

	scenario, err := loaded.File.Scenario()
	if err != nil {
		return err
	}
	opts := workload.SweepOptions{
		Scenario: scenario,
		Runs:     loaded.File.Sweep.Runs,
		Jobs:     loaded.File.Sweep.Jobs,
		BaseSeed: loaded.File.Sweep.BaseSeed,
		Tracer:   trace.FromContext(cmd.Context()),
	}
	seeds, err := opts.Seeds()
	if err != nil {
		return err
	}

	var (
		rep      workload.SweepReport
		sweepErr error
	)
	stop := timer.Start("sweep")
	if shouldUseTUI(mode, quiet, sess.toStderr) {
		title := numbers.Sprintf("sweeping %d seeds", len(seeds))
		rep, sweepErr = runSweepWithUI(cmd.Context(), title, seeds, opts)
	} else {
		rep, sweepErr = workload.Sweep(cmd.Context(), opts)
	}
	if sweepErr != nil {
		stop("failed")
	} else {
		stop("")
	}

	if path := loaded.File.Sweep.Report; path != "" && len(rep.Runs) > 0 {
		if err := timer.Time("report", func() error {
			return workload.WriteReportFile(path, &rep)
		}); err != nil {
			return fmt.Errorf("failed to write sweep report: %w", err)
		}
	}
	if !quiet {
		printSweepSummary(cmd.OutOrStdout(), rep, loaded.File.Sweep.Report)
	}
	return sweepErr
}

func printSweepSummary(out io.Writer, rep workload.SweepReport, reportPath string) {
	label := color.New(color.Bold)
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed, color.Bold)

	for _, r := range rep.Runs {
		if r.Error != "" {
			fmt.Fprintf(out, "%s seed %d: %s\n", errColor.Sprint("failed"), r.Seed, r.Error)
		}
	}
	passed := len(rep.Runs) - rep.Failed
	var polls uint64
	for _, r := range rep.Runs {
		polls += r.Polls
	}
	status := okColor.Sprint(numbers.Sprintf("%d passed", passed))
	if rep.Failed > 0 {
		status += ", " + errColor.Sprint(numbers.Sprintf("%d failed", rep.Failed))
	}
	status += numbers.Sprintf(" (%d polls)", polls)
	fmt.Fprintf(out, "%s %s in %s\n", label.Sprint("sweep:"), status, rep.Duration.Round(time.Microsecond))
	if reportPath != "" && len(rep.Runs) > 0 {
		fmt.Fprintf(out, "%s %s\n", label.Sprint("report:"), reportPath)
	}
}
