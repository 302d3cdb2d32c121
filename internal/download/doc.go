package download

// Package download implements the downloader tool on top of yt-dlp
// (via github.com/lrstanley/go-ytdlp). It turns a gateway.Command into a
// yt-dlp invocation, injects the print-to-file output sink, and reports
// progress, log lines, and the outcome as gateway events.
