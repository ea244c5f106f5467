// Package main hosts the aum CLI entrypoint and command graph.
//
// Running aum with no subcommand (or "aum run") unlocks every locked file in
// the music directory in one batch. The remaining commands inspect the
// environment ("check"), past batches ("history"), and configuration
// ("config init", "config show").
//
// Keep this package lean: behaviour lives in internal/pipeline and the
// packages it wires; commands here only resolve configuration, build the
// logger, and render results.
package main
