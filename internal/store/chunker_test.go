package store

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleDoc = `# The Hollow Crown

Intro paragraph before any section heading.

## Overview

A kingdom without a king. Three factions circle the empty throne.

## Act 1: Arrival

The players arrive at the capital during the regent's funeral.
The gates are sealed at night.

## Act 2: Descent

Below the palace, the old crypts hold the first real answer.
`

func TestChunkMarkdownByHeading(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, 1024, 20)

	if len(chunks) < 4 {
		t.Fatalf("got %d chunks, want at least 4 (one per section)", len(chunks))
	}

	headings := make(map[string]bool)
	for _, c := range chunks {
		headings[c.Heading] = true
	}
	for _, want := range []string{"Overview", "Act 1: Arrival", "Act 2: Descent"} {
		if !headings[want] {
			t.Errorf("no chunk carries heading %q (have %v)", want, headings)
		}
	}

	// Content before the first heading is kept too
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "Intro paragraph") {
			found = true
		}
	}
	if !found {
		t.Error("preamble content was dropped")
	}
}

func TestChunkMarkdownPrependsHeading(t *testing.T) {
	chunks := ChunkMarkdown(sampleDoc, 1024, 20)
	for _, c := range chunks {
		if c.Heading == "Overview" {
			if !strings.HasPrefix(c.Content, "Overview") {
				t.Errorf("chunk content does not start with its heading: %q", c.Content)
			}
			if !strings.Contains(c.Content, "kingdom without a king") {
				t.Errorf("chunk missing section body: %q", c.Content)
			}
		}
	}
}

func TestChunkMarkdownSizeCap(t *testing.T) {
	long := "## Long Section\n\n" + strings.Repeat("word ", 500)
	chunkSize := 256
	chunks := ChunkMarkdown(long, chunkSize, 32)

	if len(chunks) < 2 {
		t.Fatalf("long section not split: %d chunks", len(chunks))
	}
	for i, c := range chunks {
		// Heading prefix adds a little on top of the window size
		if len(c.Content) > chunkSize+len("Long Section")+8 {
			t.Errorf("chunk %d exceeds size cap: %d bytes", i, len(c.Content))
		}
	}
}

func TestChunkMarkdownEmpty(t *testing.T) {
	if chunks := ChunkMarkdown("", 1024, 20); len(chunks) != 0 {
		t.Errorf("empty document produced %d chunks", len(chunks))
	}
}

func TestSplitWithOverlap(t *testing.T) {
	content := strings.Repeat("alpha beta gamma ", 40) // ~680 bytes
	pieces := splitWithOverlap(content, 200, 40)

	if len(pieces) < 3 {
		t.Fatalf("got %d pieces", len(pieces))
	}
	for i, p := range pieces {
		if len(p) > 200 {
			t.Errorf("piece %d too long: %d", i, len(p))
		}
	}

	// Overlap means adjacent pieces share text
	tail := pieces[0][len(pieces[0])-20:]
	if !strings.Contains(pieces[1], strings.TrimSpace(tail)) {
		t.Errorf("no overlap between adjacent pieces")
	}
}

func TestSplitWithOverlapKeepsRunesWhole(t *testing.T) {
	// No whitespace anywhere, so every cut lands inside the rune stream
	content := strings.Repeat("тёмныеводыподнимаются", 30)
	pieces := splitWithOverlap(content, 128, 16)

	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want a split", len(pieces))
	}
	for i, p := range pieces {
		if !utf8.ValidString(p) {
			t.Errorf("piece %d is not valid UTF-8: %q", i, p)
		}
	}
}
