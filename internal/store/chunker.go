package store

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Chunk is one indexable piece of a campaign document.
type Chunk struct {
	Heading string
	Content string
}

// ChunkMarkdown splits a markdown document into chunks by heading section,
// walking the goldmark AST. Sections longer than chunkSize are split into
// overlapping windows so no chunk exceeds the cap.
func ChunkMarkdown(source string, chunkSize, overlap int) []Chunk {
	if chunkSize < 64 {
		chunkSize = 1024
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type section struct {
		heading string
		start   int
		stop    int
	}

	var sections []section
	current := section{heading: "", start: 0, stop: 0}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			if current.stop > current.start {
				sections = append(sections, current)
			}
			start, stop, ok := nodeSpan(h, src)
			heading := ""
			if ok {
				heading = strings.TrimSpace(string(src[start:stop]))
			}
			current = section{heading: heading, start: stop, stop: stop}
			continue
		}

		if _, stop, ok := nodeSpan(node, src); ok && stop > current.stop {
			current.stop = stop
		}
	}
	if current.stop > current.start {
		sections = append(sections, current)
	}

	var chunks []Chunk
	for _, sec := range sections {
		content := strings.TrimSpace(string(src[sec.start:sec.stop]))
		if content == "" {
			continue
		}
		for _, piece := range splitWithOverlap(content, chunkSize, overlap) {
			text := piece
			if sec.heading != "" {
				text = sec.heading + "\n\n" + piece
			}
			chunks = append(chunks, Chunk{Heading: sec.heading, Content: text})
		}
	}
	return chunks
}

// nodeSpan returns the source byte range covered by a node, recursing into
// children for container nodes that carry no lines themselves.
func nodeSpan(n ast.Node, src []byte) (int, int, bool) {
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		if lines != nil && lines.Len() > 0 {
			return lines.At(0).Start, lines.At(lines.Len()-1).Stop, true
		}
	}

	start, stop := -1, -1
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		cs, ce, ok := nodeSpan(child, src)
		if !ok {
			continue
		}
		if start == -1 || cs < start {
			start = cs
		}
		if ce > stop {
			stop = ce
		}
	}
	if start == -1 {
		return 0, 0, false
	}
	return start, stop, true
}

// splitWithOverlap cuts content into windows of at most size bytes with the
// given overlap, preferring to break at whitespace.
func splitWithOverlap(content string, size, overlap int) []string {
	if len(content) <= size {
		return []string{content}
	}

	var pieces []string
	start := 0
	for start < len(content) {
		end := start + size
		if end >= len(content) {
			pieces = append(pieces, strings.TrimSpace(content[start:]))
			break
		}

		// Back up to the nearest whitespace so words stay whole
		cut := end
		for cut > start && content[cut] != ' ' && content[cut] != '\n' {
			cut--
		}
		if cut == start {
			// No whitespace in the window: cut at a rune boundary instead
			cut = end
			for cut > start && !utf8.RuneStart(content[cut]) {
				cut--
			}
			if cut == start {
				cut = end
			}
		}

		pieces = append(pieces, strings.TrimSpace(content[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		for next < len(content) && !utf8.RuneStart(content[next]) {
			next++
		}
		start = next
	}

	out := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
