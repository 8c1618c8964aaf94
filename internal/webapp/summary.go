package webapp

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	summaryThreshold = 10000
	summaryWindow    = 5000
)

// summarize reduces a non-JSON body to something printable. Bodies longer
// than summaryThreshold characters are replaced by the text of the headings
// found in their first summaryWindow characters, joined with ": ".
func summarize(body string) string {
	runes := []rune(body)
	if len(runes) <= summaryThreshold {
		return body
	}
	window := string(runes[:summaryWindow])

	doc, err := html.Parse(strings.NewReader(window))
	if err != nil {
		return window
	}
	var headings []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isHeading(n.DataAtom) {
			if text := strings.TrimSpace(textOf(n)); text != "" {
				headings = append(headings, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(headings, ": ")
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(textOf(child))
	}
	return b.String()
}
