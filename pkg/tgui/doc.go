// Package tgui provides small text helpers for bot API messages:
//   - Escaping user text for the chosen parse mode
//   - Rune-safe truncation and message size limits
package tgui
