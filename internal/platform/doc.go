package platform

// Package platform contains OS and external tooling glue: filesystem helpers,
// lookup of artifacts whose final name drifted from the expected one, and
// playlist listing through the ytget/ytdlp library.
