// Package storage defines the conversation history store used by the
// groqchat CLI, with shared types and sentinel errors.
//
// Adapters live in subpackages: memory (process lifetime, LRU bounded),
// sqlite (single-user file, the CLI default) and postgres (shared server).
// Messages are persisted in their wire encoding and decoded with
// completion.DecodeMessage, so every adapter round-trips the same bytes
// the client sends.
package storage
