package loader

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements hold navigation or code, not document text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Nav:      true,
}

func extractHTML(path string) (extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extracted{}, err
	}
	return parseHTML([]byte(DecodeText(data)))
}

// parseHTML emits one line per non-empty text node outside skipped elements.
// The <title> element, when present, becomes the document title.
func parseHTML(data []byte) (extracted, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return extracted{}, err
	}
	var (
		lines []string
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title {
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return extracted{text: strings.Join(lines, "\n"), title: title}, nil
}
