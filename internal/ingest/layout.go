package ingest

import (
	"path"
	"strings"
)

// UnknownSegment fills layout dimensions missing from a document key.
const UnknownSegment = "Unknown"

// Layout is the business metadata encoded in a document key of the form
// carrier/lob/state/version/file.
type Layout struct {
	Carrier string
	LOB     string
	State   string
	Version string
	DocName string
}

// ParseKey reads a slash-separated key relative to the document root.
// Missing directory levels become UnknownSegment. Levels below the version
// directory are ignored.
func ParseKey(key string) Layout {
	clean := strings.Trim(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	parts := strings.Split(clean, "/")
	dirs := parts[:len(parts)-1]

	segment := func(i int) string {
		if i < len(dirs) && strings.TrimSpace(dirs[i]) != "" {
			return dirs[i]
		}
		return UnknownSegment
	}

	return Layout{
		Carrier: segment(0),
		LOB:     segment(1),
		State:   segment(2),
		Version: segment(3),
		DocName: parts[len(parts)-1],
	}
}
