package model

// Package model defines domain data structures used across the engine: tasks
// of both kinds, their parameters, playlist entities, and status enums.
// Values are copied into immutable snapshots, so mutation always goes through
// Clone and an explicit state transition.
