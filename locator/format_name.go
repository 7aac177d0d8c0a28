package locator

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// FormatName guesses the libavformat input format of a location; empty
// means "let libav probe".
func FormatName(location string) string {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		return formatNameFromFileExtension(location)
	}
	switch strings.ToLower(u.Scheme) {
	case "file", "s3", "http", "https":
		return formatNameFromFileExtension(u.Path)
	case "rtmp", "rtmps":
		return "flv"
	case "srt", "udp", "tcp":
		return "mpegts"
	case "rtsp":
		return "rtsp"
	default:
		return ""
	}
}

// IsLive reports whether the location is a stream rather than a file.
func IsLive(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "rtmp", "rtmps", "srt", "udp", "tcp", "rtsp":
		return true
	default:
		return false
	}
}

// InputOptions returns the libavformat options to open the location with.
// The format is only forced for live streams, where probing is slow.
func InputOptions(location string) map[string]string {
	if !IsLive(location) {
		return nil
	}
	name := FormatName(location)
	if name == "" {
		return nil
	}
	return map[string]string{"f": name}
}

func formatNameFromFileExtension(path string) string {
	switch {
	case hasFileExtension(path, ".mp4", ".m4a", ".m4v", ".mov"):
		return "mp4"
	case hasFileExtension(path, ".mkv", ".mk3d", ".mks"):
		return "matroska"
	case hasFileExtension(path, ".flv"):
		return "flv"
	case hasFileExtension(path, ".ts", ".mts", ".m2ts", ".mpeg", ".mpg", ".vob"):
		return "mpegts"
	case hasFileExtension(path, ".avi"):
		return "avi"
	case hasFileExtension(path, ".webm"):
		return "webm"
	default:
		return ""
	}
}

func hasFileExtension(path string, exts ...string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}
