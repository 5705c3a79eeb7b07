// Package fuzztests houses Go fuzz harnesses for the synchronization
// primitives and the scheduler. Each harness decodes the fuzz input as a
// program of operations, runs it and checks the invariants after every step.
package fuzztests
