// Package chunking splits document text into retrieval-sized pieces.
package chunking

import (
	"strings"
	"unicode"
)

// Chunker splits raw document text into ordered chunk contents.
type Chunker interface {
	Split(content string) []string
}

// FixedSizeChunker splits text into windows of at most ChunkSize runes with
// Overlap runes carried between consecutive windows. Cuts prefer a nearby
// word boundary.
type FixedSizeChunker struct {
	ChunkSize int
	Overlap   int
}

// NewFixedSizeChunker creates a fixed-size chunker. Non-positive sizes fall
// back to 1000 runes; an invalid overlap falls back to a tenth of the size.
func NewFixedSizeChunker(chunkSize, overlap int) *FixedSizeChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &FixedSizeChunker{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split cuts the text into overlapping windows.
func (c *FixedSizeChunker) Split(content string) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.ChunkSize {
		return []string{trimmed}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// Back up to the nearest whitespace, scanning at most 50 runes,
		// so words are not cut mid-way. A long unbroken run is cut hard.
		if end < len(runes) {
			limit := end - 50
			if limit < start {
				limit = start
			}
			for i := end - 1; i >= limit; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		nextStart := end - c.Overlap
		if nextStart <= start {
			nextStart = end
		}
		if nextStart >= len(runes) {
			break
		}
		start = nextStart
	}

	return chunks
}

// StructuredChunker splits on blank-line paragraph boundaries and packs
// paragraphs into chunks of at most MaxChunkSize runes. When a chunk fills
// up, its last paragraph is repeated at the head of the next chunk so
// context survives the cut. Paragraphs larger than the budget are split by
// sentence.
type StructuredChunker struct {
	MaxChunkSize int
}

// NewStructuredChunker creates a paragraph-preserving chunker.
func NewStructuredChunker(maxChunkSize int) *StructuredChunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	return &StructuredChunker{
		MaxChunkSize: maxChunkSize,
	}
}

// Split cuts the text along paragraph boundaries.
func (c *StructuredChunker) Split(content string) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	if len([]rune(trimmed)) <= c.MaxChunkSize {
		return []string{trimmed}
	}

	var paragraphs []string
	for _, para := range strings.Split(trimmed, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) > c.MaxChunkSize {
			paragraphs = append(paragraphs, splitOversized(para, c.MaxChunkSize)...)
			continue
		}
		paragraphs = append(paragraphs, para)
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
		}
	}

	for _, para := range paragraphs {
		paraSize := len([]rune(para))
		if size+paraSize > c.MaxChunkSize && len(current) > 0 {
			flush()
			// Carry the last paragraph into the next chunk for context.
			last := current[len(current)-1]
			if len(current) > 1 && len([]rune(last))+paraSize <= c.MaxChunkSize {
				current = []string{last, para}
				size = len([]rune(last)) + paraSize
			} else {
				current = []string{para}
				size = paraSize
			}
			continue
		}
		current = append(current, para)
		size += paraSize
	}
	flush()

	return chunks
}

// splitOversized breaks a paragraph that exceeds the budget into sentence
// groups, falling back to a hard fixed-size cut for a single giant sentence.
func splitOversized(para string, maxSize int) []string {
	sentences := splitSentences(para)

	var (
		parts   []string
		current strings.Builder
	)
	for _, sentence := range sentences {
		if len([]rune(sentence)) > maxSize {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			hard := NewFixedSizeChunker(maxSize, 0)
			parts = append(parts, hard.Split(sentence)...)
			continue
		}
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(sentence))+1 > maxSize {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// splitSentences cuts on terminal punctuation followed by whitespace or end
// of text. Handles both ASCII and CJK sentence terminators.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '?' || r == '!' || r == '。' || r == '？' || r == '！' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if sentence := strings.TrimSpace(current.String()); sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}
