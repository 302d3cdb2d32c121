package resolver

// Package resolver determines where a finished task's artifact ended up.
//
// The authoritative source is the per-task sink file the tool appends final
// paths to. When it is empty the resolver falls back, in order, to paths
// announced in the tool log, the path the tool reported on completion, and
// finally a path synthesized from the title and the expected extension.
