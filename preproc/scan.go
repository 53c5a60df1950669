package preproc

import (
	"fmt"
	"strings"
)

// MaxDepth is the depth of the first, outermost, pass
const MaxDepth = 5

const (
	markerQuote = `"""`
	markerChar  = "%"
)

// Markers holds the strings that open and close a block at some depth
type Markers struct {
	Open  string
	Close string
}

// MarkersFor returns the block markers for the given depth. A depth less
// than 1 is treated as 1.
func MarkersFor(depth int) Markers {
	if depth < 1 {
		depth = 1
	}
	pct := strings.Repeat(markerChar, depth)
	return Markers{
		Open:  markerQuote + pct,
		Close: pct + markerQuote,
	}
}

// Block is one delimited region of a document.
type Block struct {
	// Body is the text between the end of the previous block (or the
	// start of the document) and the open marker of this block
	Body string
	// Code is the text strictly between the open and close markers
	Code string
	// OpenStart and CloseStart are the byte offsets of the markers
	OpenStart  int
	CloseStart int
	// Line is the 1-based line on which the open marker starts
	Line int
}

// Scan is the result of scanning a document for blocks at one depth
type Scan struct {
	Depth  int
	Blocks []Block
	// Tail is the text after the last close marker. If there are no
	// blocks it is the whole document.
	Tail string
}

// ScanText finds the blocks in the text at the given depth. Each open
// marker is paired with the first close marker that follows it and the
// search for the next open marker resumes after that close marker. An
// open marker with no close marker after it is reported as an error; a
// close marker outside any block is ordinary text.
func ScanText(name, text string, depth int) (Scan, error) {
	m := MarkersFor(depth)
	s := Scan{Depth: depth}

	pos, line := 0, 1
	for {
		i := strings.Index(text[pos:], m.Open)
		if i < 0 {
			break
		}
		openStart := pos + i
		line += strings.Count(text[pos:openStart], "\n")

		codeStart := openStart + len(m.Open)
		j := strings.Index(text[codeStart:], m.Close)
		if j < 0 {
			return Scan{}, &Error{
				Kind: ErrUnterminatedBlock,
				Op:   "scan",
				Path: name,
				Loc:  lineLoc(name, line),
				Err: fmt.Errorf("'%s' is not followed by '%s'",
					m.Open, m.Close),
			}
		}
		closeStart := codeStart + j

		s.Blocks = append(s.Blocks, Block{
			Body:       text[pos:openStart],
			Code:       text[codeStart:closeStart],
			OpenStart:  openStart,
			CloseStart: closeStart,
			Line:       line,
		})

		line += strings.Count(text[openStart:closeStart], "\n")
		pos = closeStart + len(m.Close)
	}
	s.Tail = text[pos:]

	return s, nil
}
