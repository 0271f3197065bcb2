package content

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// typeRank orders the MIME types we can store losslessly, richest first.
// Original image bytes beat any text rendering of the same selection.
var typeRank = []string{
	"image/gif",
	"image/png",
	"image/webp",
	"image/tiff",
	"image/bmp",
	"image/jpeg",
	"text/plain;charset=utf-8",
	"UTF8_STRING",
	"text/plain",
	"STRING",
	"TEXT",
	"text/uri-list",
}

// lossyRank is the rank of image/jpeg in typeRank.
const lossyRank = 5

var textTypes = map[string]bool{
	"text/plain":    true,
	"UTF8_STRING":   true,
	"STRING":        true,
	"TEXT":          true,
	"text/uri-list": true,
}

// Preferred picks the canonical MIME type among the offered ones, returning
// the offered spelling so backends can request it verbatim.
func Preferred(types []string) (string, bool) {
	best, bestRank := "", len(typeRank)
	for _, t := range types {
		r := rankOf(t)
		if r < bestRank {
			best, bestRank = t, r
		}
	}
	return best, best != ""
}

func rankOf(t string) int {
	norm := strings.ToLower(strings.ReplaceAll(t, " ", ""))
	for i, r := range typeRank {
		if norm == strings.ToLower(r) {
			return i
		}
	}
	// Unknown image subtypes still beat text.
	if strings.HasPrefix(norm, "image/") {
		return lossyRank
	}
	return len(typeRank)
}

// IsSensitive reports whether the offered types carry the password-manager
// hint.
func IsSensitive(types []string) bool {
	for _, t := range types {
		if t == SensitiveHint {
			return true
		}
	}
	return false
}

func baseType(mime string) string {
	if mime == MIMEText {
		return "text/plain"
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

func isTextType(base string) bool {
	return textTypes[base] || strings.HasPrefix(base, "text/")
}

// Preview renders a one-line summary of c, at most n runes for text.
func Preview(c Content, n int) string {
	if c.Kind != Text {
		return fmt.Sprintf("%s %s", c.MIME, humanSize(len(c.Data)))
	}
	s := strings.Join(strings.Fields(string(c.Data)), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
