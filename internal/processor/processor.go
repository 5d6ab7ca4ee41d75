// Package processor post-processes scanned fragments: whitespace
// compaction, caller transforms, goquery document building, and the title
// text derivation used by the title lookup.
package processor

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

var (
	newlines       = regexp.MustCompile(`[\r\n]+`)
	whitespaceRuns = regexp.MustCompile(`\s{2,}`)
)

// Compact strips newlines and collapses runs of two or more whitespace
// characters into a single space.
func Compact(s string) string {
	s = newlines.ReplaceAllString(s, " ")
	return whitespaceRuns.ReplaceAllString(s, " ")
}

// Document parses a scanned fragment into a queryable goquery tree. A
// fragment without a root body marker is wrapped in a minimal container
// first so partial markup still yields a usable document.
func Document(fragment string) (*goquery.Document, error) {
	if !strings.Contains(strings.ToLower(fragment), "<body") {
		fragment = "<body>" + fragment + "</body>"
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return doc, nil
}

// TitleText derives the page title from a fragment that begins at an
// opening "<title" tag: the text after the tag's closing bracket up to the
// next tag, with HTML entities decoded.
func TitleText(fragment string) string {
	if idx := strings.IndexByte(fragment, '>'); idx >= 0 {
		fragment = fragment[idx+1:]
	}
	if idx := strings.IndexByte(fragment, '<'); idx >= 0 {
		fragment = fragment[:idx]
	}
	return strings.TrimSpace(html.UnescapeString(fragment))
}

// Text flattens a fragment into its visible text content, separating
// adjacent nodes by single spaces.
func Text(fragment string) (string, error) {
	root, err := xhtml.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.TextNode:
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(text)
			}
		case xhtml.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			fallthrough
		default:
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				walk(child)
			}
		}
	}
	walk(root)
	return b.String(), nil
}
