package census

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// keptAttrs are the attributes the enrollee view is driven by
var keptAttrs = map[string]bool{
	"id":         true,
	"class":      true,
	"name":       true,
	"type":       true,
	"value":      true,
	"onclick":    true,
	"pagenumber": true,
	"disabled":   true,
	"href":       true,
}

// Simplify strips scripts, styles and comments from a page snapshot and drops attributes
// that play no part in locating enrollee rows
func Simplify(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	simplifyNode(doc)
	cleanupNode(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

// simplifyNode recursively simplifies HTML nodes
func simplifyNode(n *html.Node) {
	var toRemove []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		simplifyNode(c)
		if shouldRemoveNode(c) {
			toRemove = append(toRemove, c)
		}
	}
	for _, node := range toRemove {
		n.RemoveChild(node)
	}

	if n.Type == html.ElementNode {
		simplifyAttributes(n)
	}
}

func shouldRemoveNode(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode:
		return true
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Meta, atom.Link, atom.Noscript, atom.Svg, atom.Img:
			return true
		}
	}
	return false
}

func simplifyAttributes(n *html.Node) {
	var keep []html.Attribute
	for _, attr := range n.Attr {
		if keptAttrs[attr.Key] || strings.HasPrefix(attr.Key, "data-") {
			keep = append(keep, attr)
		}
	}
	n.Attr = keep
}

// cleanupNode removes empty text nodes and normalizes whitespace
func cleanupNode(n *html.Node) {
	var toRemove []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cleanupNode(c)

		if c.Type == html.TextNode {
			c.Data = strings.Join(strings.Fields(c.Data), " ")
			if c.Data == "" {
				toRemove = append(toRemove, c)
			}
		}
	}
	for _, node := range toRemove {
		n.RemoveChild(node)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// WriteSnapshot saves the simplified page under dir and returns the file path
func WriteSnapshot(dir, courseID, label, page string, at time.Time) (string, error) {
	simplified, err := Simplify(page)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(label), "-"), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	name := fmt.Sprintf("%s-%s-%s.html", courseID, at.Format("20060102-150405.000"), slug)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(simplified), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}
