// Package logx configures feedpush's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink that mirrors warnings to an operations chat
//     (min-level + rate limiting)
package logx
