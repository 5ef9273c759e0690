// Package web normalises raw HTML pages into Markdown suitable for
// chunking. It extracts the main content region, drops navigation
// chrome and renders the rest as ATX-heading Markdown.
package web

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// minContentChars is the floor below which an extracted page is
// considered empty chrome and rejected.
const minContentChars = 50

// contentClasses and contentIDs drive the fallback selector chain when
// a page has no semantic <main> or <article> element.
var (
	contentClasses = []string{"content", "main", "post", "entry", "page-content"}
	contentIDs     = []string{"content", "main", "primary"}
)

// strippedTags never contribute content.
var strippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "aside": true, "iframe": true,
	"header": true, "footer": true, "form": true,
	"button": true, "svg": true,
}

// chromeClassFragments mark elements that are page chrome even inside
// the main region.
var chromeClassFragments = []string{"navigation", "sidebar", "menu", "breadcrumb", "cookie"}

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Normaliser converts raw HTML to Markdown.
type Normaliser struct{}

// New returns a web page normaliser.
func New() *Normaliser { return &Normaliser{} }

// Normalise parses rawHTML and returns its main content as Markdown.
// Returns domain.ErrNoMainContent when no candidate region is found and
// domain.ErrContentTooShort when the extracted text is below the floor.
func (n *Normaliser) Normalise(ctx context.Context, rawHTML []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(string(rawHTML)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	region := findMainRegion(doc)
	if region == nil {
		return "", domain.ErrNoMainContent
	}

	var sb strings.Builder
	renderMarkdown(&sb, region)

	md := multiNewline.ReplaceAllString(sb.String(), "\n\n")
	md = strings.TrimSpace(md)
	if len(md) < minContentChars {
		return "", fmt.Errorf("%w: %d chars", domain.ErrContentTooShort, len(md))
	}
	return md, nil
}

// findMainRegion walks the selector chain: main, article, a div with a
// known content class, a div with a known content id, then body.
func findMainRegion(doc *html.Node) *html.Node {
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "main" }); n != nil {
		return n
	}
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "article" }); n != nil {
		return n
	}
	for _, class := range contentClasses {
		if n := findElement(doc, func(n *html.Node) bool {
			return n.Data == "div" && hasClass(n, class)
		}); n != nil {
			return n
		}
	}
	for _, id := range contentIDs {
		if n := findElement(doc, func(n *html.Node) bool {
			return n.Data == "div" && attr(n, "id") == id
		}); n != nil {
			return n
		}
	}
	return findElement(doc, func(n *html.Node) bool { return n.Data == "body" })
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func isChrome(n *html.Node) bool {
	if strippedTags[n.Data] {
		return true
	}
	classes := strings.ToLower(attr(n, "class"))
	for _, fragment := range chromeClassFragments {
		if strings.Contains(classes, fragment) {
			return true
		}
	}
	return false
}

// renderMarkdown walks the element tree, writing block elements with
// surrounding blank lines and inline elements in place.
func renderMarkdown(sb *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		sb.WriteString(collapseSpace(n.Data))
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}
	if n.Type == html.ElementNode && isChrome(n) {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		text := strings.TrimSpace(inlineText(n))
		if text != "" {
			sb.WriteString("\n\n" + strings.Repeat("#", level) + " " + text + "\n\n")
		}
	case "p", "div", "section", "article", "main", "figure", "blockquote":
		sb.WriteString("\n\n")
		renderChildren(sb, n)
		sb.WriteString("\n\n")
	case "br":
		sb.WriteString("\n")
	case "hr":
		sb.WriteString("\n\n---\n\n")
	case "ul", "ol":
		sb.WriteString("\n\n")
		item := 0
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.Data == "li" {
				item++
				marker := "- "
				if n.Data == "ol" {
					marker = fmt.Sprintf("%d. ", item)
				}
				text := strings.TrimSpace(inlineText(child))
				if text != "" {
					sb.WriteString(marker + text + "\n")
				}
			}
		}
		sb.WriteString("\n")
	case "table":
		sb.WriteString("\n\n")
		renderTable(sb, n)
		sb.WriteString("\n\n")
	case "a":
		renderLink(sb, n)
	case "img":
		if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
			sb.WriteString("[Image: " + alt + "]")
		}
	case "strong", "b":
		if text := strings.TrimSpace(inlineText(n)); text != "" {
			sb.WriteString("**" + text + "**")
		}
	case "em", "i":
		if text := strings.TrimSpace(inlineText(n)); text != "" {
			sb.WriteString("*" + text + "*")
		}
	case "li":
		// handled by the ul/ol case; stray items render as text
		renderChildren(sb, n)
	default:
		renderChildren(sb, n)
	}
}

func renderChildren(sb *strings.Builder, n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		renderMarkdown(sb, child)
	}
}

// renderLink writes [text](href), unwrapping links whose text is empty
// so image-only or icon anchors do not leave `[]()`` litter.
func renderLink(sb *strings.Builder, n *html.Node) {
	text := strings.TrimSpace(inlineText(n))
	href := strings.TrimSpace(attr(n, "href"))
	switch {
	case text == "":
		return
	case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
		sb.WriteString(text)
	default:
		sb.WriteString("[" + text + "](" + href + ")")
	}
}

// renderTable renders rows as pipe-separated lines with a separator
// after the first row. Lossy for nested structure, good enough for the
// schedule and fee tables university sites publish.
func renderTable(sb *strings.Builder, n *html.Node) {
	var rows [][]string
	var collectRows func(*html.Node)
	collectRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.ElementNode && (child.Data == "td" || child.Data == "th") {
					cells = append(cells, strings.TrimSpace(inlineText(child)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collectRows(child)
		}
	}
	collectRows(n)

	for i, row := range rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			sb.WriteString("|" + strings.Repeat(" --- |", len(row)) + "\n")
		}
	}
}

// inlineText flattens a subtree to plain text, honouring the chrome
// filter and image alt rendering.
func inlineText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(collapseSpace(n.Data))
			return
		}
		if n.Type != html.ElementNode {
			return
		}
		if isChrome(n) {
			return
		}
		if n.Data == "img" {
			if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
				sb.WriteString("[Image: " + alt + "]")
			}
			return
		}
		if n.Data == "br" {
			sb.WriteString(" ")
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// collapseSpace folds runs of whitespace into single spaces, keeping
// the text joinable across inline boundaries.
func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	leading := s != strings.TrimLeft(s, " \t\n\r")
	trailing := s != strings.TrimRight(s, " \t\n\r")
	out := strings.Join(strings.Fields(s), " ")
	if leading {
		out = " " + out
	}
	if trailing {
		out += " "
	}
	return out
}
