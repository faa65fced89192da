package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// defaultSeparators is ordered coarse to fine: paragraph breaks, line breaks,
// sentence boundaries, spaces, then a hard character cut as last resort.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts long text into overlapping bounded-size chunks suitable for
// embedding. Splitting is pure and deterministic: identical input always
// yields the identical chunk sequence.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split returns the chunk sequence for text. The whole input is trimmed
// before splitting; individual chunks are not re-trimmed, so concatenating
// the chunks with each carried overlap prefix dropped reconstructs the
// trimmed input exactly. Every non-empty input produces at least one chunk.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.merge(s.split(text, s.separators))
}

// split recursively cuts text into pieces no longer than chunkSize runes,
// choosing the coarsest separator that appears in the text. Separators stay
// attached to the preceding piece so no characters are lost.
func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return hardCut(text, s.chunkSize)
	}

	var pieces []string
	for _, part := range splitAfter(text, sep) {
		if utf8.RuneCountInString(part) <= s.chunkSize {
			pieces = append(pieces, part)
		} else {
			pieces = append(pieces, s.split(part, rest)...)
		}
	}
	return pieces
}

// merge greedily packs pieces into chunks, carrying up to chunkOverlap runes
// of each chunk into the next so semantic context survives the boundary.
// No chunk exceeds chunkSize runes: when a piece near the full chunk size
// leaves no room for the carried context, the overlap is dropped for that
// chunk rather than stretching the bound.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0
	overlap := ""

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunk := overlap + current.String()
		chunks = append(chunks, chunk)
		overlap = suffix(chunk, s.chunkOverlap)
		current.Reset()
		currentLen = 0
	}

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)
		if currentLen > 0 && utf8.RuneCountInString(overlap)+currentLen+pieceLen > s.chunkSize {
			flush()
		}
		if currentLen == 0 && utf8.RuneCountInString(overlap)+pieceLen > s.chunkSize {
			overlap = ""
		}
		current.WriteString(piece)
		currentLen += pieceLen
	}
	flush()

	return chunks
}

// pickSeparator returns the first separator present in text and the
// remaining, finer separators. The empty separator always matches.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitAfter splits text by sep, keeping sep at the end of each piece.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter yields a trailing empty string when text ends with sep.
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// hardCut slices text into size-rune pieces at character boundaries.
func hardCut(text string, size int) []string {
	runes := []rune(text)
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// suffix returns the last n runes of s.
func suffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
