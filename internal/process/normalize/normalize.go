// Package normalize rewrites company names to tickers and decides whether an
// upper-case token in chat text really is a ticker.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

const defaultContextWindow = 4

var (
	fenceLineRegex = regexp.MustCompile("(?m)^[ \\t]*```[a-z0-9_+#.-]*[ \\t]*(?:\\r?\\n|$)")
	sigilRegex     = regexp.MustCompile(`\$([A-Za-z]{1,6}(?:\.[A-Za-z])?)\b`)
	upperRegex     = regexp.MustCompile(`\b[A-Z]{2,5}(?:\.[A-Z])?\b`)
	wordRegex      = regexp.MustCompile(`[A-Za-z]+`)
)

// Normalizer owns the alias table. It is immutable after New and safe for
// concurrent use.
type Normalizer struct {
	aliases      map[string]string
	aliasTickers map[string]struct{}
	aliasRegex   *regexp.Regexp
	window       int
}

// New builds a Normalizer from the compiled-in alias table plus extra entries
// (name → ticker). window is the ± word distance searched for trading terms.
func New(extra map[string]string, window int) *Normalizer {
	if window <= 0 {
		window = defaultContextWindow
	}

	aliases := make(map[string]string, len(defaultAliases)+len(extra))

	for name, ticker := range defaultAliases {
		aliases[fold(name)] = ticker
	}

	for name, ticker := range extra {
		name = fold(strings.TrimSpace(name))
		ticker = CanonicalTicker(ticker)

		if name == "" || ticker == "" {
			continue
		}

		aliases[name] = ticker
	}

	names := make([]string, 0, len(aliases))
	tickers := make(map[string]struct{}, len(aliases))

	for name, ticker := range aliases {
		names = append(names, regexp.QuoteMeta(name))
		tickers[ticker] = struct{}{}
	}

	// Longest first so "meta platforms" wins over a shorter overlapping name.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}

		return names[i] < names[j]
	})

	return &Normalizer{
		aliases:      aliases,
		aliasTickers: tickers,
		aliasRegex:   regexp.MustCompile(`(?i)\b(?:` + strings.Join(names, "|") + `)\b`),
		window:       window,
	}
}

// Normalize strips code-fence markers, keeping the fenced content, and rewrites
// known company names to $TICKER.
func (n *Normalizer) Normalize(text string) string {
	text = StripCodeFences(text)

	return n.aliasRegex.ReplaceAllStringFunc(text, func(match string) string {
		if ticker, ok := n.aliases[fold(match)]; ok {
			return "$" + ticker
		}

		return match
	})
}

// StripCodeFences removes ``` fence lines (with an optional language tag) and any
// inline ``` markers.
func StripCodeFences(text string) string {
	text = fenceLineRegex.ReplaceAllString(text, "")

	return strings.ReplaceAll(text, "```", "")
}

// HasTickerContext reports whether candidate, found at byte offset pos in text,
// should be treated as a ticker.
func (n *Normalizer) HasTickerContext(text string, pos int, candidate string) bool {
	if strings.HasPrefix(candidate, "$") || (pos > 0 && pos <= len(text) && text[pos-1] == '$') {
		return true
	}

	ticker := CanonicalTicker(candidate)
	if ticker == "" {
		return false
	}

	if _, ok := n.aliasTickers[ticker]; ok {
		return true
	}

	if n.tradingWordNear(text, pos) {
		return true
	}

	_, excluded := excludedWords[ticker]

	return !excluded
}

// DetectTickers returns the distinct tickers in text, in order of first
// appearance. Sigil tokens always count; bare upper-case tokens must pass
// HasTickerContext.
func (n *Normalizer) DetectTickers(text string) []string {
	type hit struct {
		pos    int
		ticker string
	}

	var hits []hit

	for _, loc := range sigilRegex.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{pos: loc[0], ticker: CanonicalTicker(text[loc[2]:loc[3]])})
	}

	for _, loc := range upperRegex.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == '$' {
			continue
		}

		candidate := text[loc[0]:loc[1]]
		if n.HasTickerContext(text, loc[0], candidate) {
			hits = append(hits, hit{pos: loc[0], ticker: CanonicalTicker(candidate)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))

	for _, h := range hits {
		if _, ok := seen[h.ticker]; ok || h.ticker == "" {
			continue
		}

		seen[h.ticker] = struct{}{}
		out = append(out, h.ticker)
	}

	return out
}

// Enrich adds tickers for company names the model left out. Names found in an
// idea's own text are used first; otherwise a single company named in sourceText
// is attributed. Existing symbols and primary symbols are never replaced.
func (n *Normalizer) Enrich(ideas []domain.Idea, sourceText string) []domain.Idea {
	sourceTickers := n.mentionedTickers(sourceText)

	for i := range ideas {
		idea := &ideas[i]
		if idea.IsNoise {
			continue
		}

		tickers := n.mentionedTickers(idea.IdeaText)
		if len(tickers) == 0 && len(sourceTickers) == 1 && idea.PrimarySymbol == nil && len(idea.Symbols) == 0 {
			tickers = sourceTickers
		}

		for _, t := range tickers {
			if !containsFold(idea.Symbols, t) {
				idea.Symbols = append(idea.Symbols, t)
			}
		}

		if idea.PrimarySymbol == nil && len(tickers) > 0 {
			primary := tickers[0]
			idea.PrimarySymbol = &primary
		}
	}

	return ideas
}

func (n *Normalizer) mentionedTickers(text string) []string {
	if text == "" {
		return nil
	}

	type hit struct {
		pos    int
		ticker string
	}

	var hits []hit

	for _, loc := range n.aliasRegex.FindAllStringIndex(text, -1) {
		if ticker, ok := n.aliases[fold(text[loc[0]:loc[1]])]; ok {
			hits = append(hits, hit{pos: loc[0], ticker: ticker})
		}
	}

	// Text that already went through Normalize carries $TICKER instead of the name.
	for _, loc := range sigilRegex.FindAllStringSubmatchIndex(text, -1) {
		ticker := CanonicalTicker(text[loc[2]:loc[3]])
		if _, ok := n.aliasTickers[ticker]; ok {
			hits = append(hits, hit{pos: loc[0], ticker: ticker})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	var out []string

	for _, h := range hits {
		if !containsFold(out, h.ticker) {
			out = append(out, h.ticker)
		}
	}

	return out
}

func (n *Normalizer) tradingWordNear(text string, pos int) bool {
	words := wordRegex.FindAllStringIndex(text, -1)

	idx := -1

	for i, w := range words {
		if pos >= w[0] && pos < w[1] {
			idx = i
			break
		}

		if w[0] > pos {
			idx = i
			break
		}
	}

	if idx < 0 {
		idx = len(words)
	}

	lo := max(idx-n.window, 0)
	hi := min(idx+n.window, len(words)-1)

	for i := lo; i <= hi; i++ {
		if i == idx {
			continue
		}

		w := strings.ToLower(text[words[i][0]:words[i][1]])
		if _, ok := tradingWords[w]; ok {
			return true
		}
	}

	return false
}

// CanonicalTicker upper-cases a ticker and strips a leading sigil.
func CanonicalTicker(s string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "$"))
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(CanonicalTicker(s), v) {
			return true
		}
	}

	return false
}
