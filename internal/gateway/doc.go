package gateway

// Package gateway is the contract between the engine and the external tools
// (yt-dlp, ffmpeg). A Tool starts work for a Command and reports everything
// through a single ordered stream of Events; the returned Handle is the only
// way to stop it.
