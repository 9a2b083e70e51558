package utils

import (
	"strings"
)

// filenameReplacer strips characters that are unsafe in artifact file names
// across the filesystems we archive to.
var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\x00", "",
)

// SanitizeFilename makes a subject line usable as a file name component,
// truncated to maxLen runes.
func SanitizeFilename(s string, maxLen int) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, ". ")
	if s == "" {
		s = "no_subject"
	}
	runes := []rune(s)
	if len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return s
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}
