// Package state provides TTL-bounded per-chat conversation storage for
// Telegram bots. Values are serialized on every write, so callers never share
// memory with the store, and Update runs read-modify-write as one unit.
package state
