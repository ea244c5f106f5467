// Package config loads, normalizes, and validates aum configuration data.
//
// It supplies per-environment defaults (development, testing, production,
// docker), reads an optional TOML or YAML file, loads dotenv files, and
// honours AUM_* environment overrides such as AUM_MUSIC_DIR and
// AUM_LOCKED_SUFFIXES. The Config type centralizes every knob the unlock
// pipeline and CLI need so music/download directories, the automation hub,
// and the unlock service are discovered in one pass.
//
// A loaded Config is treated as immutable: callers pass the pointer into
// constructors and never modify it afterwards.
package config
