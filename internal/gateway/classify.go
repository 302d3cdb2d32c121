package gateway

import "strings"

// Substrings that mark a failure as connectivity related (matched case-insensitively)
var networkMarkers = []string{
	"unable to download webpage",
	"unable to download api page",
	"http error 5",
	"http error 429",
	"timed out",
	"timeout",
	"temporary failure in name resolution",
	"name or service not known",
	"getaddrinfo failed",
	"nodename nor servname provided",
	"connection reset",
	"connection refused",
	"network is unreachable",
	"no route to host",
	"failed to resolve",
	"ssl: ",
	"remote end closed connection",
}

// networkTailLines is how many trailing log lines are searched for network
// markers; earlier lines count only when they are ERROR: lines.
const networkTailLines = 3

// ClassifyFailure turns a failure message and the tail of the tool log into
// either an Error or a NetworkProblem event.
func ClassifyFailure(message string, lines []string, cause error) Event {
	if detail, ok := findNetworkMarker(message); ok {
		return NetworkProblem{Detail: detail}
	}
	seen := 0
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		seen++
		if seen > networkTailLines && !strings.HasPrefix(line, "ERROR:") {
			continue
		}
		if detail, ok := findNetworkMarker(line); ok {
			return NetworkProblem{Detail: detail}
		}
	}
	if message == "" {
		message = lastErrorLine(lines)
	}
	return Error{Message: message, Cause: cause}
}

func findNetworkMarker(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, m := range networkMarkers {
		if strings.Contains(lower, m) {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// lastErrorLine prefers the last "ERROR:" line, then the last non-blank line
func lastErrorLine(lines []string) string {
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if last == "" {
			last = line
		}
	}
	if last == "" {
		return "tool exited with an error"
	}
	return last
}
