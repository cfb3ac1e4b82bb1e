// Package config loads, normalizes, and validates glbopt configuration.
//
// Configuration is TOML with defaults applied before decoding, so a missing
// file still yields a usable config. All path fields are tilde-expanded and
// made absolute during normalization.
package config
