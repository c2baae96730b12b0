package scanstore

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlPolicy strips scripts and event handlers from violation node HTML
// before it is stored. Scanned pages are untrusted input.
var htmlPolicy = bluemonday.UGCPolicy()

// SanitizeHTML cleans a violation node's outer HTML for safe storage and
// later display.
func SanitizeHTML(s string) string {
	return htmlPolicy.Sanitize(s)
}

// TargetSummary derives a short "tag#id.class" description from a node's
// outer HTML. Returns "" when the fragment has no element.
func TargetSummary(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}
	for _, n := range nodes {
		if el := firstElement(n); el != nil {
			return describeElement(el)
		}
	}
	return ""
}

func firstElement(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if el := firstElement(c); el != nil {
			return el
		}
	}
	return nil
}

func describeElement(el *html.Node) string {
	var b strings.Builder
	b.WriteString(el.Data)
	for _, attr := range el.Attr {
		switch attr.Key {
		case "id":
			if attr.Val != "" {
				b.WriteString("#")
				b.WriteString(attr.Val)
			}
		case "class":
			for _, cls := range strings.Fields(attr.Val) {
				b.WriteString(".")
				b.WriteString(cls)
			}
		}
	}
	return b.String()
}
