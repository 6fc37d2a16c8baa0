// Package chunker splits document text into overlapping passages sized for
// embedding. Sizes are measured in characters (runes); splitting is
// deterministic so re-chunking identical text yields identical boundaries.
package chunker

// Piece is one passage of a document. Start and End are rune offsets into the
// source text; consecutive pieces overlap by the configured amount.
type Piece struct {
	Ordinal int
	Text    string
	Start   int
	End     int
}

const (
	DefaultTargetChars       = 1000
	DefaultOverlapChars      = 200
	DefaultBoundaryTolerance = 250
)

// Chunker carries the splitting parameters.
type Chunker struct {
	targetChars int
	overlap     int
	tolerance   int
}

// New returns a Chunker with the given target size, overlap, and boundary
// tolerance. Non-positive values fall back to defaults; overlap is capped
// below the target so consecutive chunks always advance.
func New(targetChars, overlap, tolerance int) *Chunker {
	if targetChars <= 0 {
		targetChars = DefaultTargetChars
	}
	if overlap < 0 {
		overlap = DefaultOverlapChars
	}
	if overlap >= targetChars {
		overlap = targetChars / 4
	}
	if tolerance <= 0 || tolerance >= targetChars {
		tolerance = DefaultBoundaryTolerance
		if tolerance >= targetChars {
			tolerance = targetChars / 4
		}
	}
	return &Chunker{targetChars: targetChars, overlap: overlap, tolerance: tolerance}
}

// Split cuts text into ordered overlapping pieces. A blank document yields no
// pieces; text no longer than one target yields exactly one piece covering
// the whole text.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	if isBlank(runes) {
		return nil
	}

	if len(runes) <= c.targetChars {
		return []Piece{{Ordinal: 0, Text: text, Start: 0, End: len(runes)}}
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + c.targetChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.cutAt(runes, start, end)
		}

		pieces = append(pieces, Piece{
			Ordinal: len(pieces),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// cutAt picks the split point for a chunk starting at start with a hard limit
// at limit. It prefers, within the tolerance window before limit: a paragraph
// break, then a sentence end, then any whitespace. With no boundary in the
// window it cuts at limit exactly.
func (c *Chunker) cutAt(runes []rune, start, limit int) int {
	window := limit - c.tolerance
	if window < start+1 {
		window = start + 1
	}

	// Paragraph break: cut after the blank line.
	for i := limit - 1; i > window; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	// Sentence end: punctuation followed by whitespace.
	for i := limit - 1; i >= window; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			return i + 1
		}
	}

	// Any whitespace.
	for i := limit - 1; i >= window; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}

	return limit
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !isSpace(r) {
			return false
		}
	}
	return true
}
