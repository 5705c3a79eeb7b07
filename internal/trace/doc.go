// Package trace records what the strand scheduler did: driver loop spans,
// task lifecycle points attributed to task IDs, exit signal and result
// registry events, and optionally every single poll.
//
// Levels are cumulative over scopes:
//
//	off     nothing
//	error   driver and task events, kept in a ring and dumped on failure
//	phase   driver and task events
//	detail  plus exit signal and result registry
//	debug   plus every poll
//
// A tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, "run", 0)
//	defer span.End("")
//
// Sinks are StreamTracer (text, NDJSON or msgpack to a writer), RingTracer
// (in-memory tail) and MultiTracer (fan-out); New assembles them from Config.
package trace
