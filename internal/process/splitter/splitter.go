// Package splitter cuts long chat messages into soft chunks so that each chunk
// carries roughly one idea. Chunk indexes are stable for a given text, which lets
// a failed message be re-split and re-parsed chunk by chunk.
package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/process/normalize"
)

const (
	DefaultThreshold = 1500
	DefaultMinChunk  = 200
)

var (
	headingRegex       = regexp.MustCompile(`^(?:#{1,6}\s+\S|\*\*[^*]+\*\*:?$|__[^_]+__:?$)`)
	leadingTickerRegex = regexp.MustCompile(`^(?:[-*•>]\s*|\d+[.)]\s*)?(?:#{1,6}\s*)?(?:\*\*)?(\$[A-Za-z]{1,6}(?:\.[A-Za-z])?|[A-Z]{2,5}(?:\.[A-Z])?)\b`)
)

// TickerDetector finds tickers in a piece of text.
type TickerDetector interface {
	DetectTickers(text string) []string
}

// Splitter is stateless after construction and safe for concurrent use.
type Splitter struct {
	threshold int
	minChunk  int
	detector  TickerDetector
}

type segment struct {
	start, end int
	typ        domain.ChunkType
}

// New creates a Splitter. Non-positive sizes use the defaults; a nil detector
// disables ticker boundaries and DetectedTickers.
func New(threshold, minChunk int, detector TickerDetector) *Splitter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if minChunk <= 0 || minChunk > threshold {
		minChunk = min(DefaultMinChunk, threshold)
	}

	return &Splitter{threshold: threshold, minChunk: minChunk, detector: detector}
}

// Split returns the chunks of text in source order. Offsets are byte offsets
// into text and consecutive chunks cover it without gaps.
func (s *Splitter) Split(messageID, text string) []domain.Chunk {
	if utf8.RuneCountInString(text) <= s.threshold {
		return []domain.Chunk{s.chunk(messageID, 0, text, segment{start: 0, end: len(text), typ: domain.ChunkSingle})}
	}

	segs := s.segments(text)
	segs = s.splitOversize(text, segs)
	segs = s.merge(text, segs)

	if len(segs) == 1 {
		segs[0].typ = domain.ChunkSingle
	}

	chunks := make([]domain.Chunk, 0, len(segs))
	for i, seg := range segs {
		chunks = append(chunks, s.chunk(messageID, i, text, seg))
	}

	return chunks
}

func (s *Splitter) chunk(messageID string, index int, text string, seg segment) domain.Chunk {
	body := strings.TrimSpace(text[seg.start:seg.end])

	var tickers []string
	if s.detector != nil {
		tickers = s.detector.DetectTickers(body)
	}

	return domain.Chunk{
		MessageID:       messageID,
		Index:           index,
		Text:            body,
		Type:            seg.typ,
		StartOffset:     seg.start,
		EndOffset:       seg.end,
		DetectedTickers: tickers,
	}
}

// segments opens a new segment at headings, after blank lines and at lines that
// lead with a ticker different from the current block's.
func (s *Splitter) segments(text string) []segment {
	var (
		segs      []segment
		curTicker string
		prevBlank bool
		lineStart int
	)

	cur := segment{start: 0, typ: domain.ChunkSection}
	first := true

	for lineStart < len(text) {
		lineEnd := len(text)
		if i := strings.IndexByte(text[lineStart:], '\n'); i >= 0 {
			lineEnd = lineStart + i + 1
		}

		trimmed := strings.TrimSpace(text[lineStart:lineEnd])
		if trimmed == "" {
			prevBlank = true
			lineStart = lineEnd

			continue
		}

		ticker := s.leadingTicker(trimmed)

		var (
			boundary bool
			typ      domain.ChunkType
		)

		switch {
		case headingRegex.MatchString(trimmed):
			boundary, typ = true, domain.ChunkHeading
		case ticker != "" && ticker != curTicker:
			boundary, typ = true, domain.ChunkTickerBlock
		case prevBlank:
			boundary, typ = true, domain.ChunkSection
		}

		if boundary {
			if first {
				cur.typ = typ
			} else if lineStart > cur.start {
				cur.end = lineStart
				segs = append(segs, cur)
				cur = segment{start: lineStart, typ: typ}
			}

			curTicker = ticker
		}

		first = false
		prevBlank = false
		lineStart = lineEnd
	}

	cur.end = len(text)

	return append(segs, cur)
}

func (s *Splitter) leadingTicker(line string) string {
	if s.detector == nil {
		return ""
	}

	m := leadingTickerRegex.FindStringSubmatch(line)
	if m == nil {
		return ""
	}

	candidate := normalize.CanonicalTicker(m[1])

	for _, t := range s.detector.DetectTickers(line) {
		if t == candidate {
			return candidate
		}
	}

	return ""
}

// splitOversize breaks segments longer than the threshold at line boundaries.
// A single line longer than the threshold stays whole.
func (s *Splitter) splitOversize(text string, segs []segment) []segment {
	out := make([]segment, 0, len(segs))

	for _, seg := range segs {
		if runeLen(text, seg) <= s.threshold {
			out = append(out, seg)
			continue
		}

		piece := segment{start: seg.start, typ: seg.typ}
		pos := seg.start

		for pos < seg.end {
			lineEnd := seg.end
			if i := strings.IndexByte(text[pos:seg.end], '\n'); i >= 0 {
				lineEnd = pos + i + 1
			}

			blank := strings.TrimSpace(text[pos:lineEnd]) == ""
			if !blank && pos > piece.start && utf8.RuneCountInString(text[piece.start:lineEnd]) > s.threshold {
				piece.end = pos
				out = append(out, piece)
				piece = segment{start: pos, typ: domain.ChunkSection}
			}

			pos = lineEnd
		}

		piece.end = seg.end
		out = append(out, piece)
	}

	return out
}

// merge folds a chunk shorter than the minimum into its successor; a short
// trailing chunk folds into its predecessor.
func (s *Splitter) merge(text string, segs []segment) []segment {
	out := make([]segment, 0, len(segs))

	for _, seg := range segs {
		if n := len(out); n > 0 && runeLen(text, out[n-1]) < s.minChunk {
			out[n-1].end = seg.end
			continue
		}

		out = append(out, seg)
	}

	if n := len(out); n > 1 && runeLen(text, out[n-1]) < s.minChunk {
		out[n-2].end = out[n-1].end
		out = out[:n-1]
	}

	return out
}

func runeLen(text string, seg segment) int {
	return utf8.RuneCountInString(strings.TrimSpace(text[seg.start:seg.end]))
}
