package services

import (
	"regexp"
	"strings"
)

// Chunker splits cleaned document text into size-bounded chunks, preferring
// paragraph and sentence boundaries so no chunk bisects a sentence.
type Chunker struct {
	maxChunkSize   int
	minChunkSize   int
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

// NewChunker creates a chunker targeting maxChunkSize characters per chunk.
func NewChunker(maxChunkSize, minChunkSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	if minChunkSize <= 0 || minChunkSize >= maxChunkSize {
		minChunkSize = maxChunkSize / 10
	}
	return &Chunker{
		maxChunkSize:   maxChunkSize,
		minChunkSize:   minChunkSize,
		sentenceRegex:  regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}
}

// Split chunks text on paragraph boundaries first, falling back to sentence
// boundaries for oversized paragraphs. Never returns an empty chunk; blank
// input yields no chunks.
func (c *Chunker) Split(text string) []string {
	paragraphs := filterBlank(c.paragraphRegex.Split(text, -1))
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	current := new(strings.Builder)

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	appendPiece := func(piece string) {
		if current.Len()+len(piece) > c.maxChunkSize && current.Len() >= c.minChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
	}

	for _, paragraph := range paragraphs {
		if len(paragraph) <= c.maxChunkSize {
			appendPiece(paragraph)
			continue
		}
		// Oversized paragraph: pack whole sentences up to the limit.
		for _, sentence := range c.splitSentences(paragraph) {
			if current.Len()+len(sentence) > c.maxChunkSize && current.Len() > 0 {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)
		}
	}
	flush()

	return chunks
}

// splitSentences returns whole sentences, falling back to fixed-size runs
// for text without sentence punctuation.
func (c *Chunker) splitSentences(text string) []string {
	matches := c.sentenceRegex.FindAllStringSubmatch(text, -1)
	var sentences []string
	consumed := 0
	for _, m := range matches {
		s := strings.TrimSpace(m[1])
		if s != "" {
			sentences = append(sentences, s)
		}
		consumed += len(m[0])
	}
	// Trailing text with no terminal punctuation.
	if rest := strings.TrimSpace(text[min(consumed, len(text)):]); rest != "" {
		for len(rest) > c.maxChunkSize {
			sentences = append(sentences, rest[:c.maxChunkSize])
			rest = rest[c.maxChunkSize:]
		}
		sentences = append(sentences, rest)
	}
	return sentences
}

func filterBlank(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
