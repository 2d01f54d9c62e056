// Package config loads, normalizes, and validates Herald configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GITHUB_TOKEN and BLUESKY_APP_PASSWORD. The Config type centralizes every knob
// the scheduler daemon and CLI need, so the queue store, platform credentials,
// drafting model, and feed sources are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
