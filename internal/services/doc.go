// Package services defines shared utilities consumed by the orchestrator, the
// retrieval engine, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, worker kinds, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify a
//     failure (launch, protocol, job, synthesis) without parsing messages.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability) stays uniform across the CLI and the HTTP boundary.
package services
