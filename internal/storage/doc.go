// Package storage persists the delivery watermark between runs.
//
// The watermark is the highest entry identity known to be delivered; an entry
// is new iff its identity is above it. Two drivers store the same watermark:
//   - "file":   a plain JSON integer, replaced atomically (tmp + rename),
//     plus an append-only delivery journal (JSON Lines)
//   - "sqlite": a single row per feed key, plus a deliveries table
//
// Missing or corrupt state loads as the empty record.
package storage
