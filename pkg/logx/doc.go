// Package logx configures taskd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level/outputs swappable at runtime (config hot reload)
//
// Console output goes to stderr: stdout belongs to the command front-end.
package logx
