package processor

import (
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// ObjectKey is where a render's artifact lives in storage.
func ObjectKey(renderID, outputName string) string {
	return path.Join("renders", renderID, SanitizeFilename(outputName))
}

// SanitizeFilename limpia un nombre de archivo de caracteres peligrosos
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "video.mp4"
	}
	return s
}

// MimeFromName returns the content type for a video file name.
func MimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// truncate keeps the first n bytes of s without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
