// Package flashq implements the core storage engine and log API of
// FlashQ: a per-topic append-only record log with offset- and
// time-based retrieval, consumer-group offset tracking, and
// configurable on-disk durability.
//
// The package exposes a topic-keyed Queue backed by a pluggable
// StorageBackend. Two backends are provided: an in-memory backend for
// tests and ephemeral use, and a file backend that persists records in
// segmented, indexed log files under a data directory.
//
// FlashQ does not serve network requests, replicate across machines,
// or authenticate callers; it is a process-local library meant to sit
// behind a serving layer that does those things.
package flashq
