package convert

// Package convert implements the transcoder tool: ffmpeg driven through
// os/exec with machine readable progress on stderr, the encoder picked from
// the capability cache, and the finished output path appended to the task's
// sink file.
