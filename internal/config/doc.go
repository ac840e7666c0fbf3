// Package config loads, normalizes, and validates quire configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a working-directory .env file, and
// honours environment fallbacks such as QUIRE_LLM_API_KEY and OPENAI_API_KEY.
// The Config type centralizes every knob the daemon and CLI need so the
// artifact store, embedding client and workflow engine are configured in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
