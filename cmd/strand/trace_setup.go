package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"strand/internal/config"
	"strand/internal/trace"
)

// traceSession owns the tracer created for one command.
type traceSession struct {
	tracer    trace.Tracer
	ring      *trace.RingTracer
	heartbeat *trace.Heartbeat
	toStderr  bool
}

// traceFlags are the trace settings after merging flags over strand.toml.
type traceFlags struct {
	output, level, mode, format string
	ringSize                    int
	heartbeat                   time.Duration
}

// readTraceFlags prefers flags set on the command line, then the [trace]
// section, then flag defaults.
func readTraceFlags(cmd *cobra.Command, file config.TraceConfig) (traceFlags, error) {
	flags := cmd.Root().PersistentFlags()
	var tf traceFlags
	for _, f := range []struct {
		name, fromFile string
		dst            *string
	}{
		{"trace", file.Output, &tf.output},
		{"trace-level", file.Level, &tf.level},
		{"trace-mode", file.Mode, &tf.mode},
		{"trace-format", "", &tf.format},
	} {
		v, err := flags.GetString(f.name)
		if err != nil {
			return tf, fmt.Errorf("failed to get %s flag: %w", f.name, err)
		}
		if !flags.Changed(f.name) && f.fromFile != "" {
			v = f.fromFile
		}
		*f.dst = v
	}
	var err error
	if tf.ringSize, err = flags.GetInt("trace-ring-size"); err != nil {
		return tf, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	if tf.heartbeat, err = flags.GetDuration("trace-heartbeat"); err != nil {
		return tf, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}
	return tf, nil
}

// setupTracing builds the tracer and attaches it to the command context.
func setupTracing(cmd *cobra.Command, file config.TraceConfig) (*traceSession, error) {
	tf, err := readTraceFlags(cmd, file)
	if err != nil {
		return nil, err
	}
	level, err := trace.ParseLevel(tf.level)
	if err != nil {
		return nil, err
	}
	// An explicit output without a level traces task lifecycles.
	if level == trace.LevelOff && tf.output != "" {
		level = trace.LevelPhase
	}
	mode, err := trace.ParseMode(tf.mode)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(tf.format)
	if err != nil {
		return nil, err
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: tf.output,
		RingSize:   tf.ringSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	return &traceSession{
		tracer:    tracer,
		ring:      trace.RingOf(tracer),
		heartbeat: trace.StartHeartbeat(tracer, tf.heartbeat),
		toStderr:  level > trace.LevelError && mode != trace.ModeRing && (tf.output == "" || tf.output == "-"),
	}, nil
}

// Close stops the heartbeat, dumps the ring to stderr when the command failed
// and closes the tracer.
func (s *traceSession) Close(cmd *cobra.Command, failed bool) {
	if s == nil {
		return
	}
	s.heartbeat.Stop()
	errOut := cmd.ErrOrStderr()
	if failed && s.ring != nil {
		fmt.Fprintf(os.Stderr, "trace: last %d events before failure:\n", len(s.ring.Snapshot()))
		if err := s.ring.Dump(os.Stderr, trace.FormatText); err != nil {
			fmt.Fprintf(errOut, "trace: dump error: %v\n", err)
		}
	}
	if err := s.tracer.Close(); err != nil {
		fmt.Fprintf(errOut, "trace: close error: %v\n", err)
	}
}
