package processing_engine

import (
	"strings"
	"unicode/utf8"
)

const pageMarkerPrefix = "--- Page"

// chunkBuilder greedily accumulates paragraphs into a running chunk until
// appending the next one would exceed max, provided the running chunk has
// already reached min. Identical input and limits always yield an identical
// chunk sequence.
type chunkBuilder struct {
	max, min int
	chunks   []string
	current  string
}

func (b *chunkBuilder) add(paragraph string) {
	for _, piece := range splitOversized(paragraph, b.max) {
		if b.current != "" && len(b.current)+len(piece)+2 > b.max && len(b.current) >= b.min {
			b.chunks = append(b.chunks, b.current)
			b.current = piece
			continue
		}
		if b.current == "" {
			b.current = piece
		} else {
			b.current += "\n\n" + piece
		}
	}
}

// finish flushes the tail. When mergeForward is set an undersized tail is
// folded into the previous chunk instead of standing alone.
func (b *chunkBuilder) finish(mergeForward bool) []string {
	if b.current != "" {
		if mergeForward && len(b.current) < b.min && len(b.chunks) > 0 {
			b.chunks[len(b.chunks)-1] += "\n\n" + b.current
		} else {
			b.chunks = append(b.chunks, b.current)
		}
		b.current = ""
	}
	return b.chunks
}

// splitOversized hard-splits a paragraph longer than max at the max
// boundary, backing off to the nearest rune start. Content is never dropped
// or truncated.
func splitOversized(p string, max int) []string {
	if len(p) <= max {
		return []string{p}
	}
	var parts []string
	for len(p) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(p[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		parts = append(parts, p[:cut])
		p = p[cut:]
	}
	if p != "" {
		parts = append(parts, p)
	}
	return parts
}

// ChunkText splits text into bounded chunks, preferring blank-line paragraph
// boundaries. All chunks except the last satisfy min <= len <= max unless a
// single paragraph exceeded max and was hard-split.
func ChunkText(text string, maxSize, minSize int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	b := &chunkBuilder{max: maxSize, min: minSize}
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		b.add(paragraph)
	}
	chunks := b.finish(true)

	if len(chunks) == 0 {
		chunks = splitOversized(strings.TrimSpace(text), maxSize)
	}
	return chunks
}

// ChunkPDFText chunks page-marked PDF text. A page marker is never split
// from the page content that follows it: the marker rides with the first
// paragraph of its page, so chunks begin at page or paragraph boundaries.
func ChunkPDFText(text string, maxSize, minSize int) []string {
	if !strings.Contains(text, pageMarkerPrefix) {
		return ChunkText(text, maxSize, minSize)
	}

	b := &chunkBuilder{max: maxSize, min: minSize}
	for _, section := range strings.Split(text, pageMarkerPrefix) {
		if strings.TrimSpace(section) == "" {
			continue
		}

		header := ""
		content := section
		lines := strings.SplitN(strings.Trim(section, "\n"), "\n", 2)
		if strings.HasSuffix(strings.TrimSpace(lines[0]), "---") {
			header = pageMarkerPrefix + strings.TrimRight(lines[0], " ")
			if len(lines) == 2 {
				content = lines[1]
			} else {
				content = ""
			}
		}

		for _, paragraph := range strings.Split(content, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}
			if header != "" {
				paragraph = header + "\n" + paragraph
				header = ""
			}
			b.add(paragraph)
		}
	}
	return b.finish(true)
}
