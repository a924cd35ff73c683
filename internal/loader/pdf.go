package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads the plain text of every page. The PDF parser panics on
// some malformed files, so a panic is turned into an error for this file only.
func extractPDF(path string) (ex extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return extracted{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	text := builder.String()
	return extracted{
		text:  text,
		title: pdfTitle(text),
		meta:  map[string]string{"pages": strconv.Itoa(pages)},
	}, nil
}

// pdfTitle returns the first substantial line of the extracted text.
func pdfTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 20 && !numbered.MatchString(line) && !noiseMarker.MatchString(line) {
			return strings.Join(strings.Fields(line), " ")
		}
	}
	return ""
}
