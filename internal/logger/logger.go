// Package logger constructs the zap.Logger cuckoomcd wires into the server.
// The engine, protocol and dispatch packages never log — only startup,
// shutdown and connection-level events do, through an injected
// *zap.Logger. Cuckoo-chain evictions are counted in metrics, not logged.
//
// © 2025 cuckoomc authors. MIT License.
package logger

import "go.uber.org/zap"

// New builds a production logger: JSON-encoded, info level, with stack
// traces attached to errors. Used by cmd/cuckoomcd's default wiring.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// Nop returns a logger that discards everything, the default for tests and
// benchmarks that have no interest in log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}
