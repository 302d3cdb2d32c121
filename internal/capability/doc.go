package capability

// Package capability detects which hardware encoders and accelerators the
// local ffmpeg build offers. Detection runs at most once per generation and
// the result is shared by all readers; Invalidate starts a new generation.
