// Package llm is a small client for OpenAI-compatible chat completion
// endpoints (OpenAI, OpenRouter, Ollama, and gateways that speak the same
// wire format). Synthesis uses Complete; doctor uses HealthCheck.
//
// Requests that fail with 408, 429, 5xx, an empty completion, or a network
// timeout are retried with doubling delays. A Retry-After header overrides
// the computed delay. Cancelling the context ends the retry loop.
package llm
