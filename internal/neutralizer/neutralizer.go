// Package neutralizer disables hyperlinks in HTML email bodies.
//
// Anchors that render as buttons (they wrap an image or Outlook VML shape
// markup) keep their element and lose their destination. Plain text links
// are unwrapped to their text. Bare URLs in visible text are masked.
package neutralizer

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkPlaceholder replaces bare URLs found in text
const LinkPlaceholder = "[link removed]"

const inertHref = "#"

var (
	shapeHrefRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(<v:roundrect\b[^>]*?\shref\s*=\s*)("[^"]*"|'[^']*'|[^\s"'>]+)`),
		regexp.MustCompile(`(?i)(<v:shape\b[^>]*?\shref\s*=\s*)("[^"]*"|'[^']*'|[^\s"'>]+)`),
	}
	anchorHrefRe = regexp.MustCompile(`(?i)(<a\b[^>]*?\shref\s*=\s*)("[^"]*"|'[^']*'|[^\s"'>]+)`)
	urlRe        = regexp.MustCompile(`(?i)https?://[^\s"<>()]+`)
	documentRe   = regexp.MustCompile(`(?i)<\s*(!doctype|html|head|body)\b`)
)

// Stats counts the rewrites made by each stage
type Stats struct {
	ShapeHrefs   int // VML shape hrefs set to #
	AnchorHrefs  int // anchor hrefs set to # before tree parsing
	ButtonHrefs  int // button-like anchors whose href was still live in the tree
	Unwrapped    int // plain anchors replaced by their content
	URLsMasked   int // bare URLs replaced in text
	ParseFailure bool
}

// Touched reports whether any link was changed
func (s Stats) Touched() bool {
	return s.ShapeHrefs+s.AnchorHrefs+s.ButtonHrefs+s.Unwrapped+s.URLsMasked > 0
}

// Neutralize disables every hyperlink in an HTML document or fragment.
// Stats.Touched reports whether anything was changed; untouched input is
// returned as is.
func Neutralize(s string) (string, Stats) {
	var stats Stats

	out := s
	for _, re := range shapeHrefRes {
		var n int
		out, n = defuseHrefs(re, out)
		stats.ShapeHrefs += n
	}
	out, stats.AnchorHrefs = defuseHrefs(anchorHrefRe, out)

	rendered, err := rewriteTree(out, &stats)
	if err != nil {
		// Keep the textual rewrites, the tree stages are best-effort
		stats.ParseFailure = true
		rendered = out
	}

	if !stats.Touched() {
		return s, stats
	}
	return rendered, stats
}

// defuseHrefs sets every href captured by re to # and returns the number of
// live destinations it replaced
func defuseHrefs(re *regexp.Regexp, s string) (string, int) {
	n := 0
	out := re.ReplaceAllStringFunc(s, func(m string) string {
		sub := re.FindStringSubmatch(m)
		if sub == nil || unquote(sub[2]) == inertHref {
			return m
		}
		n++
		return sub[1] + requote(sub[2], inertHref)
	})
	return out, n
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}

// requote replaces the value keeping the original quoting style
func requote(orig, v string) string {
	if len(orig) > 0 && (orig[0] == '"' || orig[0] == '\'') {
		q := orig[:1]
		return q + v + q
	}
	return v
}

// rewriteTree runs the tree stages: anchor classification, text node
// merging and bare URL masking
func rewriteTree(s string, stats *Stats) (string, error) {
	root, fragment, err := parse(s)
	if err != nil {
		return "", err
	}

	for _, a := range findAll(root, atom.A) {
		if isButton(a) {
			if setInertHref(a) {
				stats.ButtonHrefs++
			}
			continue
		}
		unwrap(a)
		stats.Unwrapped++
	}

	mergeText(root)
	stats.URLsMasked = maskURLs(root)

	var buf bytes.Buffer
	if !fragment {
		if err := html.Render(&buf, root); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// parse builds a tree from a full document, or from a fragment parsed in a
// body context so no html/head/body wrapper is added. For fragments the
// returned root is a synthetic body whose children are rendered.
func parse(s string) (*html.Node, bool, error) {
	if documentRe.MatchString(s) {
		doc, err := html.Parse(strings.NewReader(s))
		return doc, false, err
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), body)
	if err != nil {
		return nil, true, err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return body, true, nil
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

// isButton reports whether an anchor wraps an image or VML shape markup
func isButton(a *html.Node) bool {
	if len(findAll(a, atom.Img)) > 0 {
		return true
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, a); err != nil {
		return false
	}
	rendered := strings.ToLower(buf.String())
	return strings.Contains(rendered, "v:roundrect") || strings.Contains(rendered, "v:shape")
}

// setInertHref forces href to # and reports whether a live value was replaced
func setInertHref(n *html.Node) bool {
	for i, attr := range n.Attr {
		if attr.Namespace != "" || !strings.EqualFold(attr.Key, "href") {
			continue
		}
		if attr.Val == inertHref {
			return false
		}
		n.Attr[i].Val = inertHref
		return true
	}
	return false
}

// unwrap replaces n with its children
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
}

// mergeText joins adjacent text nodes so that URLs split across former
// anchor boundaries are matched whole
func mergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		for c.Type == html.TextNode && c.NextSibling != nil && c.NextSibling.Type == html.TextNode {
			next := c.NextSibling
			c.Data += next.Data
			n.RemoveChild(next)
		}
		mergeText(c)
	}
}

// maskURLs replaces bare URLs in visible text and returns how many were
// replaced. Comments and script/style content are left alone.
func maskURLs(n *html.Node) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			matches := urlRe.FindAllStringIndex(n.Data, -1)
			if len(matches) > 0 {
				n.Data = urlRe.ReplaceAllLiteralString(n.Data, LinkPlaceholder)
				count += len(matches)
			}
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}
