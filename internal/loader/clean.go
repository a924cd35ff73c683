package loader

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var (
	lineEdges   = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	blankRuns   = regexp.MustCompile(`\n{2,}`)
	spaceRuns   = regexp.MustCompile(`[ \t\v\x{00a0}]+`)
	numbered    = regexp.MustCompile(`^\d+[.)]`)
	noiseMarker = regexp.MustCompile(`(?i)\b(?:references|table)\b`)
)

// DecodeText returns data as NFC-normalized UTF-8. Bytes that are not valid
// UTF-8 are decoded as Windows-1252, the usual encoding of legacy exports.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	var s string
	if utf8.Valid(data) {
		s = string(data)
	} else if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
		s = string(decoded)
	} else {
		s = strings.ToValidUTF8(string(data), "\ufffd")
	}
	return norm.NFC.String(s)
}

// Clean normalizes line endings, drops form feeds, trims every line and
// collapses runs of spaces and blank lines.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = lineEdges.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// FilterNoise drops lines that are layout rather than content: numbered
// headings, short all-caps banners and reference or table captions.
func FilterNoise(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		s := strings.TrimSpace(ln)
		switch {
		case s == "":
			continue
		case numbered.MatchString(s):
			continue
		case utf8.RuneCountInString(s) < 30 && isUpper(s):
			continue
		case noiseMarker.MatchString(s):
			continue
		}
		kept = append(kept, ln)
	}
	return strings.Join(kept, "\n")
}

// isUpper reports whether s has at least one letter and no lowercase letters.
func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
