package history

// Package history receives one record per successfully finished task. The
// engine only calls Sink.Add and never waits on or inspects the result; the
// storage behind it is pluggable.
