package resolver

import "regexp"

// Log lines in which yt-dlp announces where an artifact is written.
// The capture group holds the path.
var destinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Moving (?:file ".+?" )?to "(.+)"$`),
	regexp.MustCompile(`Merging formats into "(.+)"$`),
	regexp.MustCompile(`^\[download\] (.+) has already been downloaded`),
	regexp.MustCompile(`Destination:\s*(.+)$`),
}

// PathFromLogs returns the path of the last log line announcing a destination
func PathFromLogs(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		for _, re := range destinationPatterns {
			if m := re.FindStringSubmatch(lines[i]); m != nil {
				if p := cleanPath(m[1]); p != "" {
					return p
				}
			}
		}
	}
	return ""
}
