package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0o755
)

// MaxNameDifference bounds how much longer a truncated or decorated name may be
const MaxNameDifference = 10

// In-progress artifacts written by yt-dlp and ffmpeg
var SkippedExtensions = []string{".part", ".ytdl", ".temp"}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// FileExists reports whether path names an existing file or directory
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindFileWithFallback returns filePath if it exists. Otherwise it looks in the
// same directory for a file with the same extension whose name is a small
// variation of the expected one (restricted filenames, prefixes, truncation).
func FindFileWithFallback(filePath string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("file path is empty")
	}
	if strings.HasPrefix(filePath, "http") {
		return "", fmt.Errorf("file path appears to be a URL: %s", filePath)
	}
	if !strings.ContainsAny(filePath, `/\`) {
		return "", fmt.Errorf("file path does not contain path separators: %s", filePath)
	}

	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil
	}

	dir := filepath.Dir(filePath)
	ext := filepath.Ext(filePath)
	wanted := normalizeName(strings.TrimSuffix(filepath.Base(filePath), ext))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext || isInProgress(name) {
			continue
		}
		if isSimilarFileName(normalizeName(strings.TrimSuffix(name, ext)), wanted) {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("file not found: %s", filePath)
	}

	// Prefer the most recently written candidate
	sort.SliceStable(candidates, func(i, j int) bool {
		infoI, errI := os.Stat(candidates[i])
		infoJ, errJ := os.Stat(candidates[j])
		if errI != nil || errJ != nil {
			return candidates[i] < candidates[j]
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})
	return candidates[0], nil
}

// normalizeName folds the differences yt-dlp's --restrict-filenames introduces
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.':
			return '_'
		}
		return r
	}, name)
}

// isSimilarFileName checks if two normalized names are close enough to be the same file
func isSimilarFileName(name1, name2 string) bool {
	name1 = strings.Trim(name1, "_")
	name2 = strings.Trim(name2, "_")
	if name1 == name2 {
		return true
	}
	if name1 == "" || name2 == "" {
		return false
	}

	if strings.Contains(name1, name2) || strings.Contains(name2, name1) {
		diff := len(name1) - len(name2)
		if diff < 0 {
			diff = -diff
		}
		return diff <= MaxNameDifference
	}
	return false
}

func isInProgress(name string) bool {
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
