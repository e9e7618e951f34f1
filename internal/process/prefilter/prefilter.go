// Package prefilter rejects chat messages that can never contain a trading idea
// before any model is called: bot commands, URL-only posts, bot echoes and messages
// that are empty once normalized.
//
// A single *Prefilter is shared by the live parser and the batch builder so that both
// paths reach the same verdict for the same text.
package prefilter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Reason explains a verdict. ReasonNone means the message continues.
type Reason string

// Verdict reasons, in evaluation priority order.
const (
	ReasonBotCommand  Reason = "bot_command"
	ReasonURLOnly     Reason = "url_only"
	ReasonBotResponse Reason = "bot_response"
	ReasonEmpty       Reason = "empty"
	ReasonNone        Reason = "none"
)

// AuthorMeta is the part of the author record the prefilter looks at.
type AuthorMeta struct {
	Name  string
	IsBot bool
}

// Verdict is the prefilter decision for one message.
type Verdict struct {
	Skip   bool
	Reason Reason
}

var defaultCommandPrefixes = []string{"!", "/", "?"}

var (
	urlRegex = regexp.MustCompile(`(?i)<?\b(?:https?://|www\.)[^\s<>]+>?`)
	// [label](url) markdown links keep nothing once the url is gone.
	mdLinkRegex = regexp.MustCompile(`\[([^\]]*)\]\(\s*(?:https?://|www\.)[^)]*\)`)
)

// Prefilter holds the configured command prefixes and known bot names.
type Prefilter struct {
	commandPrefixes []string
	knownBots       map[string]struct{}
}

// New creates a Prefilter. Empty prefixes fall back to "!", "/" and "?".
func New(commandPrefixes, knownBots []string) *Prefilter {
	prefixes := make([]string, 0, len(commandPrefixes))

	for _, p := range commandPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	if len(prefixes) == 0 {
		prefixes = append(prefixes, defaultCommandPrefixes...)
	}

	bots := make(map[string]struct{}, len(knownBots))

	for _, b := range knownBots {
		if b = foldName(b); b != "" {
			bots[b] = struct{}{}
		}
	}

	return &Prefilter{commandPrefixes: prefixes, knownBots: bots}
}

// Check evaluates text and author in fixed priority order:
// bot command, URL-only body, known bot author, empty after normalization.
func (p *Prefilter) Check(text string, author AuthorMeta) Verdict {
	normalized := Normalize(text)

	if p.isBotCommand(normalized) {
		return Verdict{Skip: true, Reason: ReasonBotCommand}
	}

	if isURLOnly(normalized) {
		return Verdict{Skip: true, Reason: ReasonURLOnly}
	}

	if p.isKnownBot(author) {
		return Verdict{Skip: true, Reason: ReasonBotResponse}
	}

	if normalized == "" {
		return Verdict{Skip: true, Reason: ReasonEmpty}
	}

	return Verdict{Skip: false, Reason: ReasonNone}
}

// Normalize applies NFKC, drops zero-width and control characters and trims space.
func Normalize(text string) string {
	text = norm.NFKC.String(text)

	var sb strings.Builder

	sb.Grow(len(text))

	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			continue
		case isZeroWidth(r):
			continue
		case unicode.IsControl(r) && r != '\n' && r != '\t':
			continue
		}

		sb.WriteRune(r)
	}

	return strings.TrimSpace(sb.String())
}

func (p *Prefilter) isBotCommand(text string) bool {
	for _, prefix := range p.commandPrefixes {
		rest, ok := strings.CutPrefix(text, prefix)
		if !ok {
			continue
		}

		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsLetter(r) {
			return true
		}
	}

	return false
}

func isURLOnly(text string) bool {
	if text == "" {
		return false
	}

	stripped := mdLinkRegex.ReplaceAllString(text, "")
	if stripped == text && !urlRegex.MatchString(text) {
		return false
	}

	stripped = urlRegex.ReplaceAllString(stripped, "")

	return !hasAlphaNum(stripped)
}

func (p *Prefilter) isKnownBot(author AuthorMeta) bool {
	if author.IsBot {
		return true
	}

	if len(p.knownBots) == 0 {
		return false
	}

	_, ok := p.knownBots[foldName(author.Name)]

	return ok
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	default:
		return false
	}
}

func hasAlphaNum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}

	return false
}
