package model

import "strings"

// KindFlags describes a finished task for history consumers
type KindFlags uint8

const (
	FlagDownload KindFlags = 1 << iota
	FlagConversion
	FlagAudioOnly
	FlagSplitChapters
	FlagPlaylistItem
)

var flagNames = []struct {
	flag KindFlags
	name string
}{
	{FlagDownload, "download"},
	{FlagConversion, "conversion"},
	{FlagAudioOnly, "audio"},
	{FlagSplitChapters, "chapters"},
	{FlagPlaylistItem, "playlist"},
}

// Has reports whether all bits of f are set
func (k KindFlags) Has(f KindFlags) bool {
	return k&f == f
}

// String returns the set flags joined with "|"
func (k KindFlags) String() string {
	var names []string
	for _, fn := range flagNames {
		if k.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
