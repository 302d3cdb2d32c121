package resolver

import (
	"path/filepath"
	"strings"
)

// SplitBase finds the non-split base artifact among the sink lines of a split
// chapters download. The base has extension ext and its stem either names the
// directory holding the chapter files or prefixes their names ("stem - 001 ...").
// It returns "" when no such artifact is present.
func SplitBase(lines []string, ext string) string {
	ext = "." + strings.TrimPrefix(ext, ".")

	for _, candidate := range lines {
		if !strings.EqualFold(filepath.Ext(candidate), ext) {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(candidate), filepath.Ext(candidate))
		if stem == "" || filepath.Base(filepath.Dir(candidate)) == stem {
			continue
		}

		for _, other := range lines {
			if other == candidate {
				continue
			}
			if filepath.Base(filepath.Dir(other)) == stem || strings.HasPrefix(filepath.Base(other), stem+" - ") {
				return candidate
			}
		}
	}
	return ""
}

// ChapterDir returns the directory holding the chapter files of a split
// download: the common directory of all lines other than base.
func ChapterDir(lines []string, base string) string {
	dir := ""
	for _, l := range lines {
		if l == base {
			continue
		}
		d := filepath.Dir(l)
		if dir == "" {
			dir = d
			continue
		}
		for dir != d && !strings.HasPrefix(d, dir+string(filepath.Separator)) {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return dir
}
