package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"strand/internal/prof"
)

// setupProfiling starts the profilers named by the profiling flags. The
// returned session is nil when none is requested; stopping nil is a no-op.
func setupProfiling(cmd *cobra.Command) (*prof.Session, error) {
	var opts prof.Options
	for flag, dst := range map[string]*string{
		"cpu-profile":   &opts.CPU,
		"mem-profile":   &opts.Mem,
		"runtime-trace": &opts.Trace,
	} {
		v, err := cmd.Root().PersistentFlags().GetString(flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	if !opts.Enabled() {
		return nil, nil
	}
	return prof.Start(opts)
}

func stopProfiling(cmd *cobra.Command, s *prof.Session) {
	if err := s.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "profiling: %v\n", err)
	}
}
