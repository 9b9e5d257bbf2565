// Package jobs owns the single active batch transcription job.
//
// The Orchestrator moves a job through Idle -> Running -> {Completed,
// Stopped, Failed}. At most one job runs at a time: the in-process state
// guard rejects a second Start, and a gofrs/flock lock on
// <state_dir>/batch.lock extends the rule to other vidscribe processes
// sharing the state directory. A single relay goroutine per job decodes
// worker output with the protocol package and publishes events on a Bus in
// emission order. Cancellation is cooperative: Cancel records the request
// and sends SIGTERM, and the job only becomes Stopped once the worker exits.
package jobs
