package store

// Package store holds the live task list as a sequence of immutable snapshots.
// Readers load the current snapshot without locking; writers are serialized
// and publish a new snapshot for every change.
