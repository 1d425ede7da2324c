// Package cmd implements the CLI subcommands: check parses layout
// sources and reports diagnostics, fmt rewrites them in canonical or
// data-projection form, and version prints build metadata.
package cmd
