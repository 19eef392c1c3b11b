// Package textproc provides pure functions for cleaning, deduplicating and
// incrementally merging transcript fragments arriving from speech-to-text,
// plus dialogue formatting helpers. None of the functions here hold state.
package textproc

import (
	"math"
	"regexp"
	"strings"
)

// minOverlap is the smallest suffix/prefix overlap SmartAppend splices on
// its main scan. Shorter overlaps are treated as coincidence unless the
// junction visibly cuts a word in half.
const minOverlap = 10

// maxOverlapWindow caps how far back into the previous text the overlap
// scan looks.
const maxOverlapWindow = 100

// DedupAppend merges a newly arrived fragment into the accumulated
// transcript. Repeated tails are ignored, and a fragment that contains the
// whole accumulated text replaces it (the recognizer re-emitted a corrected,
// extended transcription).
func DedupAppend(current, incoming string) string {
	clean := strings.TrimSpace(incoming)
	if clean == "" {
		return current
	}
	if strings.HasSuffix(current, clean) {
		return current
	}
	if current != "" && strings.Contains(clean, current) {
		return clean
	}
	sep := ""
	if current != "" && !strings.HasSuffix(current, " ") {
		sep = " "
	}
	return current + sep + clean
}

// SmartAppend joins two live transcript chunks, splicing out the longest
// suffix-of-previous / prefix-of-next overlap so the overlapping span is not
// duplicated. The scan window is capped at min(100, len(previous),
// len(next)) bytes and runs longest-first down to a 10 byte floor. Below the
// floor an overlap is only spliced when it continues a word cut at the end
// of previous ("...quick br" + "brown fox"); otherwise the chunks are joined
// with a single space.
func SmartAppend(previous, next string) string {
	if previous == "" {
		return next
	}
	if next == "" {
		return previous
	}

	window := maxOverlapWindow
	if len(previous) < window {
		window = len(previous)
	}
	if len(next) < window {
		window = len(next)
	}
	for n := window; n >= minOverlap; n-- {
		if strings.HasPrefix(next, previous[len(previous)-n:]) {
			return previous + next[n:]
		}
	}

	if spliced, ok := splitWordSplice(previous, next); ok {
		return spliced
	}

	if strings.HasSuffix(previous, " ") || strings.HasPrefix(next, " ") {
		return previous + next
	}
	return previous + " " + next
}

// splitWordSplice handles sub-floor overlaps where the previous chunk ends
// mid-word and the next chunk re-emits that word in full: the last token of
// previous must be a proper prefix of the first token of next.
func splitWordSplice(previous, next string) (string, bool) {
	prevTrim := strings.TrimRight(previous, " ")
	cut := strings.LastIndexByte(prevTrim, ' ')
	lastToken := prevTrim[cut+1:]
	if lastToken == "" {
		return "", false
	}

	firstToken := next
	if sp := strings.IndexByte(next, ' '); sp >= 0 {
		firstToken = next[:sp]
	}
	if len(lastToken) >= len(firstToken) || !strings.HasPrefix(firstToken, lastToken) {
		return "", false
	}
	return prevTrim[:cut+1] + next, true
}

// FinalizeSentence appends a period unless the text already ends with a
// sentence terminator (optionally followed by trailing whitespace).
// Idempotent: finalizing twice never stacks punctuation.
func FinalizeSentence(text string) string {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if trimmed == "" {
		return text
	}
	runes := []rune(trimmed)
	switch runes[len(runes)-1] {
	case '.', '?', '!', '…':
		return text
	}
	return trimmed + "."
}

// speakerTag matches the bold speaker markers the dialogue restructurer
// emits, e.g. "**Commercial :**" or "**Prospect:**".
var speakerTag = regexp.MustCompile(`\*\*[^*]+?:\s*\*\*`)

// FormatDialogueWithLineBreaks inserts a blank line before every speaker tag
// except the first and exactly one space between a tag and its spoken
// content. Existing whitespace around tags is normalized, never duplicated.
func FormatDialogueWithLineBreaks(text string) string {
	locs := speakerTag.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text[:locs[0][0]])
	for i, loc := range locs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text[loc[0]:loc[1]])

		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := text[loc[1]:end]
		if i+1 < len(locs) {
			content = strings.TrimRight(content, " \t\r\n")
		}
		content = strings.TrimLeft(content, " \t")
		if content != "" {
			b.WriteByte(' ')
			b.WriteString(content)
		}
	}
	return b.String()
}

// TextStats summarizes a transcript for display and exports.
type TextStats struct {
	Characters           int      `json:"characters"`
	Words                int      `json:"words"`
	Paragraphs           int      `json:"paragraphs"`
	Speakers             []string `json:"speakers,omitempty"`
	IsDialogue           bool     `json:"isDialogue"`
	EstimatedReadingMins int      `json:"estimatedReadingTime"`
}

var paragraphSplit = regexp.MustCompile(`\n\n+`)

// Stats analyzes a transcript: word/character/paragraph counts, the speakers
// named in bold tags, and an estimated reading time at 200 words per minute.
func Stats(text string) TextStats {
	words := strings.Fields(text)

	paragraphs := 0
	for _, p := range paragraphSplit.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs == 0 {
		paragraphs = 1
	}

	var speakers []string
	seen := map[string]bool{}
	for _, tag := range speakerTag.FindAllString(text, -1) {
		name := strings.TrimSpace(strings.Trim(tag, "*"))
		name = strings.TrimSpace(strings.TrimSuffix(name, ":"))
		if name != "" && !seen[name] {
			seen[name] = true
			speakers = append(speakers, name)
		}
	}

	return TextStats{
		Characters:           len(text),
		Words:                len(words),
		Paragraphs:           paragraphs,
		Speakers:             speakers,
		IsDialogue:           len(speakers) >= 2,
		EstimatedReadingMins: int(math.Ceil(float64(len(words)) / 200)),
	}
}
