// Package cli assembles the command-line interface: kong flag parsing,
// early logger configuration, optional profiling, and the check and
// fmt commands over layout sources.
package cli
