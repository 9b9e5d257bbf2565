// Package config loads, normalizes, and validates vidscribe configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads an optional .env file beside the config, and honours
// environment fallbacks for provider secrets such as OPENAI_API_KEY. The
// Config type centralizes every knob the CLI, the batch orchestrator, and the
// HTTP boundary need so worker scripts, output folders, and retrieval tuning
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
