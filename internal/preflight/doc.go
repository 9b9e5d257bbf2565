// Package preflight provides readiness checks for the worker toolchain,
// filesystem paths, and the synthesis provider that vidscribe depends on.
//
// These checks run in two contexts:
//   - "vidscribe doctor" renders every check, including a live provider ping.
//   - "vidscribe batch" and the HTTP server call RunAll without the network
//     checks and refuse to start a job when a required path is unusable.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
