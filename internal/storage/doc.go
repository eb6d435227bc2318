// Package storage persists the reservation set.
//
// Two backends are available:
//   - "file": a single JSON array, rewritten in full on every commit
//   - "sqlite": one row per reservation in an embedded SQLite database
//
// Both rewrite the whole set on Save; neither guarantees crash atomicity
// beyond what rename or a single transaction give.
package storage
