// Package worker launches and supervises external worker processes.
//
// A Launcher resolves a Kind (batch-transcribe, verify-model, download-model,
// search) to a command line, starts exactly one process per call, and returns
// a Handle exposing line-oriented stdout/stderr channels, a graceful Cancel,
// and a completion future. Workers always run with PYTHONUNBUFFERED=1 so their
// output arrives line by line.
//
// Cancellation is cooperative: Cancel (or cancelling the launch context) sends
// SIGTERM exactly once and never escalates to a kill. Callers decide how long
// to wait.
package worker
