package resolver

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	sinkExt     = ".paths"
	sinkHashLen = 24
)

// SinkPath returns the sink file for a task. The name is derived from the task
// ID and its source, so two tasks downloading the same URL never share a sink.
func SinkPath(dir, taskID, source string) string {
	sum := sha256.Sum256([]byte(taskID + "\x00" + source))
	return filepath.Join(dir, hex.EncodeToString(sum[:])[:sinkHashLen]+sinkExt)
}

// ReadSink returns the non-blank lines of a sink file, trimmed and unquoted.
// A missing or unreadable sink yields no lines.
func ReadSink(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := cleanPath(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// DeleteSink removes the sink file. Absence is fine; other failures are logged only.
func DeleteSink(path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		if logger != nil {
			logger.Warn("failed to delete sink file", zap.String("path", path), zap.Error(err))
		}
	}
}

// cleanPath trims whitespace and one pair of surrounding quotes
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
