// Package parser implements the markdown parsing contract: a pure,
// deterministic mapping from file bytes to a ParsedNote. The goldmark
// AST supplies the block structure; wikilinks, callouts, math, tags,
// and footnotes are extracted from the source text.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/Mootikins/crucible/internal/vault/note"
)

var (
	wikiLinkRe  = regexp.MustCompile(`(!?)\[\[([^\[\]]+)\]\]`)
	footnoteRe  = regexp.MustCompile(`(?m)^\[\^([^\]]+)\]:\s*(.+)$`)
	tagRe       = regexp.MustCompile(`(?:^|\s)#([\pL\pN_][\pL\pN_/-]*)`)
	latexRe     = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	calloutRe   = regexp.MustCompile(`^\[!([A-Za-z-]+)\][ \t]*(.*)$`)
	mdExtension = regexp.MustCompile(`(?i)\.(md|markdown)$`)
)

// Parse maps file bytes to a ParsedNote. Deterministic given bytes:
// timestamps stay zero unless the frontmatter provides them (callers
// wanting filesystem fallback use ParseFile).
func Parse(path string, source []byte) (*note.ParsedNote, error) {
	sum := sha256.Sum256(source)
	n := &note.ParsedNote{
		Path:        path,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	body, frontmatter, err := splitFrontmatter(source)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	n.Frontmatter = frontmatter
	bodyOffset := len(source) - len(body)

	n.CreatedAt = frontmatterTime(frontmatter, "created")
	n.ModifiedAt = frontmatterTime(frontmatter, "modified")

	if err := walkBlocks(n, body, bodyOffset); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	extractInline(n, body, bodyOffset)
	return n, nil
}

// ParseFile reads and parses the file, filling timestamp gaps from the
// filesystem.
func ParseFile(path string) (*note.ParsedNote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	n, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if n.CreatedAt.IsZero() || n.ModifiedAt.IsZero() {
		if info, err := os.Stat(path); err == nil {
			if n.ModifiedAt.IsZero() {
				n.ModifiedAt = info.ModTime().UTC()
			}
			if n.CreatedAt.IsZero() {
				n.CreatedAt = n.ModifiedAt
			}
		}
	}
	return n, nil
}

// IsMarkdown reports whether the path has a markdown extension.
func IsMarkdown(path string) bool {
	return mdExtension.MatchString(path)
}

// splitFrontmatter strips a leading "---\n...\n---\n" block and decodes
// it as YAML.
func splitFrontmatter(source []byte) ([]byte, map[string]interface{}, error) {
	if !bytes.HasPrefix(source, []byte("---\n")) && !bytes.HasPrefix(source, []byte("---\r\n")) {
		return source, nil, nil
	}
	rest := source[bytes.IndexByte(source, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return source, nil, nil
	}
	raw := rest[:end]
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}

	fm := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return source, nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return body, fm, nil
}

func frontmatterTime(fm map[string]interface{}, key string) time.Time {
	if fm == nil {
		return time.Time{}
	}
	switch v := fm[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// walkBlocks extracts headings, paragraphs, code blocks, lists, and
// callout blockquotes from the goldmark AST.
func walkBlocks(n *note.ParsedNote, body []byte, bodyOffset int) error {
	md := goldmark.New()
	reader := text.NewReader(body)
	doc := md.Parser().Parse(reader)

	return ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := node.(type) {
		case *ast.Heading:
			n.Headings = append(n.Headings, note.Heading{
				Text:   string(node.Text(body)),
				Level:  node.Level,
				Offset: nodeOffset(node, bodyOffset),
			})

		case *ast.Paragraph:
			// Paragraphs inside list items and blockquotes belong to
			// their containers.
			if insideContainer(node) {
				return ast.WalkContinue, nil
			}
			content := string(node.Text(body))
			if isLatexOnly(content) {
				return ast.WalkContinue, nil
			}
			n.Paragraphs = append(n.Paragraphs, note.Paragraph{
				Text:   content,
				Offset: nodeOffset(node, bodyOffset),
			})

		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				code.Write(line.Value(body))
			}
			lang := ""
			if node.Info != nil {
				if fields := strings.Fields(string(node.Info.Text(body))); len(fields) > 0 {
					lang = fields[0]
				}
			}
			n.CodeBlocks = append(n.CodeBlocks, note.CodeBlock{
				Language: lang,
				Code:     strings.TrimRight(code.String(), "\n"),
				Offset:   nodeOffset(node, bodyOffset),
			})
			return ast.WalkSkipChildren, nil

		case *ast.List:
			var items []string
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				items = append(items, string(item.Text(body)))
			}
			n.Lists = append(n.Lists, note.List{
				Items:   items,
				Ordered: node.IsOrdered(),
				Offset:  nodeOffset(node, bodyOffset),
			})
			return ast.WalkSkipChildren, nil

		case *ast.Blockquote:
			lines := blockquoteLines(node, body)
			content := strings.Join(lines, "\n")
			offset := nodeOffset(node, bodyOffset)
			if len(lines) > 0 {
				if m := calloutRe.FindStringSubmatch(lines[0]); m != nil {
					n.Callouts = append(n.Callouts, note.Callout{
						Kind:   strings.ToLower(m[1]),
						Title:  strings.TrimSpace(m[2]),
						Body:   strings.Join(lines[1:], "\n"),
						Offset: offset,
					})
					return ast.WalkSkipChildren, nil
				}
			}
			// Plain blockquotes read as paragraphs.
			n.Paragraphs = append(n.Paragraphs, note.Paragraph{
				Text:   content,
				Offset: offset,
			})
			return ast.WalkSkipChildren, nil

		case *ast.Link:
			n.InlineLinks = append(n.InlineLinks, note.InlineLink{
				Text:   string(node.Text(body)),
				URL:    string(node.Destination),
				Offset: parentOffset(node, bodyOffset),
			})
		}
		return ast.WalkContinue, nil
	})
}

// blockquoteLines collects the quote's raw text lines with the marker
// already stripped by the block parser.
func blockquoteLines(node ast.Node, body []byte) []string {
	var lines []string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if segs := child.Lines(); segs != nil {
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				lines = append(lines, strings.TrimSpace(string(seg.Value(body))))
			}
		}
	}
	return lines
}

func insideContainer(node ast.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.(type) {
		case *ast.ListItem, *ast.Blockquote:
			return true
		}
	}
	return false
}

func isLatexOnly(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "$$") && strings.HasSuffix(trimmed, "$$")
}

func nodeOffset(node ast.Node, bodyOffset int) int {
	if lines := node.Lines(); lines != nil && lines.Len() > 0 {
		return bodyOffset + lines.At(0).Start
	}
	if node.FirstChild() != nil && node.FirstChild() != node {
		return nodeOffset(node.FirstChild(), bodyOffset)
	}
	return bodyOffset
}

func parentOffset(node ast.Node, bodyOffset int) int {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if lines := p.Lines(); lines != nil && lines.Len() > 0 {
			return bodyOffset + lines.At(0).Start
		}
	}
	return bodyOffset
}

// extractInline pulls the regex-extracted elements: wikilinks, latex
// blocks, footnote definitions, and tags.
func extractInline(n *note.ParsedNote, body []byte, bodyOffset int) {
	src := string(body)

	for _, m := range wikiLinkRe.FindAllStringSubmatchIndex(src, -1) {
		isEmbed := m[3] > m[2]
		inner := src[m[4]:m[5]]
		link := parseWikiTarget(inner)
		link.IsEmbed = isEmbed
		link.Offset = bodyOffset + m[0]
		n.WikiLinks = append(n.WikiLinks, link)
	}

	for _, m := range latexRe.FindAllStringSubmatchIndex(src, -1) {
		n.Latex = append(n.Latex, note.Latex{
			Source: strings.TrimSpace(src[m[2]:m[3]]),
			Offset: bodyOffset + m[0],
		})
	}

	for _, m := range footnoteRe.FindAllStringSubmatchIndex(src, -1) {
		n.Footnotes = append(n.Footnotes, note.Footnote{
			Ref:    src[m[2]:m[3]],
			Text:   strings.TrimSpace(src[m[4]:m[5]]),
			Offset: bodyOffset + m[0],
		})
	}

	seen := map[string]bool{}
	for _, m := range tagRe.FindAllStringSubmatch(src, -1) {
		tag := m[1]
		if !seen[tag] {
			seen[tag] = true
			n.Tags = append(n.Tags, tag)
		}
	}
}

// parseWikiTarget splits "target#heading|alias" / "target#^block"
// forms.
func parseWikiTarget(inner string) note.WikiLink {
	link := note.WikiLink{}

	target := inner
	if i := strings.Index(target, "|"); i >= 0 {
		link.Alias = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		ref := target[i+1:]
		target = target[:i]
		if strings.HasPrefix(ref, "^") {
			link.BlockRef = strings.TrimPrefix(ref, "^")
		} else {
			link.HeadingRef = ref
		}
	}
	link.Target = strings.TrimSpace(target)
	return link
}
