package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"strand/internal/config"
	"strand/internal/observ"
	"strand/internal/trace"
	"strand/internal/workload"
)

// numbers prints counts with digit grouping.
var numbers = message.NewPrinter(language.English)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fan-in workload once and exit with its exit code",
	Long: `Run spawns a supervisor, its workers and joiners on one scheduler and
drives it until the supervisor sets the exit code. The process exits with
that code.`,
	Args: cobra.NoArgs,
	RunE: runExecution,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "scheduling mode (fifo|fuzz)")
	cmd.Flags().Uint64("seed", 0, "fuzz scheduling seed")
	cmd.Flags().Int("workers", 0, "number of workers")
	cmd.Flags().Int("yields", 0, "times each worker yields before returning")
	cmd.Flags().Int("joiners", 0, "number of joiners")
	cmd.Flags().Int("stragglers", 0, "tasks left pending when the exit code is set")
	cmd.Flags().Int("exit-code", 0, "exit code set by the supervisor (0..255)")
}

// applyRunFlags overrides file values with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, file *config.File) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("mode") {
		if file.Scheduler.Mode, err = flags.GetString("mode"); err != nil {
			return err
		}
	}
	if flags.Changed("seed") {
		if file.Scheduler.Seed, err = flags.GetUint64("seed"); err != nil {
			return err
		}
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"workers", &file.Workload.Workers},
		{"yields", &file.Workload.Yields},
		{"joiners", &file.Workload.Joiners},
		{"stragglers", &file.Workload.Stragglers},
		{"exit-code", &file.Workload.ExitCode},
	}
	for _, f := range ints {
		if !flags.Changed(f.name) {
			continue
		}
		if *f.dst, err = flags.GetInt(f.name); err != nil {
			return err
		}
	}
	return file.Validate()
}

func runExecution(cmd *cobra.Command, args []string) (err error) {
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	timer := observ.NewTimer()
	var loaded *config.Loaded
	if err := timer.Time("config", func() error {
		var loadErr error
		if loaded, loadErr = loadConfig(cmd); loadErr != nil {
			return loadErr
		}
		return applyRunFlags(cmd, &loaded.File)
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
	execCfg := loaded.File.Executor()
	execCfg.Tracer = trace.FromContext(cmd.Context())

	var rep workload.Report
	runErr := timer.Time("run", func() error {
		var werr error
		rep, werr = workload.Run(cmd.Context(), scenario, execCfg)
		return werr
	})

	if !quiet {
		printRunSummary(cmd.OutOrStdout(), loaded, rep)
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if runErr != nil {
		return runErr
	}
	exitCode = int(rep.ExitCode)
	return nil
}

func printRunSummary(out io.Writer, loaded *config.Loaded, rep workload.Report) {
	label := color.New(color.Bold)
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed, color.Bold)

	source := "defaults"
	if loaded.Path != "" {
		source = loaded.Path
	}
	fmt.Fprintf(out, "%s %s (seed %d, config: %s)\n", label.Sprint("mode:"), rep.Mode, rep.Seed, source)
	numbers.Fprintf(out, "%s %d tasks, %d polls, %d left pending\n", label.Sprint("tasks:"), rep.Tasks, rep.Polls, rep.Unfinished)
	sum := fmt.Sprintf("%d/%d", rep.Sum, rep.Expected)
	if rep.Sum == rep.Expected {
		sum = okColor.Sprint(sum)
	} else {
		sum = errColor.Sprint(sum)
	}
	fmt.Fprintf(out, "%s %s\n", label.Sprint("sum:"), sum)
	if rep.Exited {
		fmt.Fprintf(out, "%s %s\n", label.Sprint("exit:"), okColor.Sprint(rep.ExitCode))
	} else {
		fmt.Fprintf(out, "%s %s\n", label.Sprint("exit:"), errColor.Sprint("not set"))
	}
	if rep.Error != "" {
		fmt.Fprintf(out, "%s %s\n", errColor.Sprint("error:"), rep.Error)
	}
	fmt.Fprintf(out, "%s %.2f ms\n", label.Sprint("took:"), float64(rep.Duration)/float64(time.Millisecond))
}
