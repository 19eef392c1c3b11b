package textproc

import (
	"strings"
	"testing"
)

func TestDedupAppend(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		incoming string
		want     string
	}{
		{"empty incoming", "Bonjour", "", "Bonjour"},
		{"whitespace incoming", "Bonjour", "   ", "Bonjour"},
		{"empty current", "", "Bonjour", "Bonjour"},
		{"both empty", "", "", ""},
		{"tail repeat", "Bonjour monsieur", "monsieur", "Bonjour monsieur"},
		{"exact repeat", "Bonjour monsieur", "Bonjour monsieur", "Bonjour monsieur"},
		{"superset replaces", "Bonjour", "Bonjour tout le monde", "Bonjour tout le monde"},
		{"plain append", "Bonjour", "tout le monde", "Bonjour tout le monde"},
		{"no double separator", "Bonjour ", "monsieur", "Bonjour monsieur"},
		{"incoming trimmed", "Bonjour", "  monsieur  ", "Bonjour monsieur"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupAppend(tt.current, tt.incoming)
			if got != tt.want {
				t.Errorf("DedupAppend(%q, %q) = %q, want %q", tt.current, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestDedupAppend_RepeatIsStable(t *testing.T) {
	text := DedupAppend("", "Bonjour monsieur")
	for i := 0; i < 3; i++ {
		text = DedupAppend(text, "Bonjour monsieur")
	}
	if text != "Bonjour monsieur" {
		t.Errorf("repeated identical fragments accumulated: %q", text)
	}
}

func TestSmartAppend_Overlap(t *testing.T) {
	prev := "and then the quick brown fox jumps over"
	next := "fox jumps over the lazy dog"
	got := SmartAppend(prev, next)
	want := "and then the quick brown fox jumps over the lazy dog"
	if got != want {
		t.Errorf("SmartAppend() = %q, want %q", got, want)
	}
	if strings.Count(got, "fox jumps over") != 1 {
		t.Errorf("overlap duplicated: %q", got)
	}
}

func TestSmartAppend_MidWordCut(t *testing.T) {
	got := SmartAppend("...the quick br", "brown fox jumps")
	if strings.Count(got, "the quick brown fox jumps") != 1 {
		t.Errorf("expected spliced mid-word overlap, got %q", got)
	}
	if strings.Contains(got, "br brown") {
		t.Errorf("duplicated partial word: %q", got)
	}
}

func TestSmartAppend_Cases(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want string
	}{
		{"empty prev", "", "hello", "hello"},
		{"empty next", "hello", "", "hello"},
		{"short coincidence joins", "we met", "et again later on", "we met et again later on"},
		{"no overlap joins with space", "first part", "second part", "first part second part"},
		{"prev trailing space", "first part ", "second part", "first part second part"},
		{"full shorter string overlap", "abcdefghijkl", "abcdefghijkl and more", "abcdefghijkl and more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SmartAppend(tt.prev, tt.next)
			if got != tt.want {
				t.Errorf("SmartAppend(%q, %q) = %q, want %q", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestFinalizeSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds period", "Bonjour", "Bonjour."},
		{"keeps period", "Bonjour.", "Bonjour."},
		{"keeps question mark", "Vous allez bien ?", "Vous allez bien ?"},
		{"keeps exclamation", "Super !", "Super !"},
		{"keeps ellipsis", "Bon…", "Bon…"},
		{"terminator then whitespace", "Bonjour.  ", "Bonjour.  "},
		{"trailing space no terminator", "Bonjour ", "Bonjour."},
		{"empty", "", ""},
		{"whitespace only", "   ", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FinalizeSentence(tt.in)
			if got != tt.want {
				t.Errorf("FinalizeSentence(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := FinalizeSentence(got); again != got {
				t.Errorf("FinalizeSentence not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestFormatDialogueWithLineBreaks(t *testing.T) {
	in := "**Commercial :**Bonjour, comment allez-vous ?**Prospect :** Très bien, merci.**Commercial :**   Parfait."
	want := "**Commercial :** Bonjour, comment allez-vous ?\n\n**Prospect :** Très bien, merci.\n\n**Commercial :** Parfait."

	got := FormatDialogueWithLineBreaks(in)
	if got != want {
		t.Errorf("FormatDialogueWithLineBreaks() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatDialogueWithLineBreaks_AlreadyFormatted(t *testing.T) {
	in := "**Commercial :** Bonjour.\n\n**Prospect :** Merci."
	got := FormatDialogueWithLineBreaks(in)
	if got != in {
		t.Errorf("existing whitespace duplicated:\n%q", got)
	}
}

func TestFormatDialogueWithLineBreaks_NoTags(t *testing.T) {
	in := "plain transcript, no speakers"
	if got := FormatDialogueWithLineBreaks(in); got != in {
		t.Errorf("text without tags altered: %q", got)
	}
}

func TestStats(t *testing.T) {
	in := "**Commercial :** Bonjour, je vous propose notre offre.\n\n**Prospect :** Ça m'intéresse."
	stats := Stats(in)

	if stats.Words == 0 || stats.Characters != len(in) {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.Paragraphs != 2 {
		t.Errorf("expected 2 paragraphs, got %d", stats.Paragraphs)
	}
	if len(stats.Speakers) != 2 || stats.Speakers[0] != "Commercial" || stats.Speakers[1] != "Prospect" {
		t.Errorf("unexpected speakers: %v", stats.Speakers)
	}
	if !stats.IsDialogue {
		t.Error("expected dialogue detection")
	}
}

func TestStats_Empty(t *testing.T) {
	stats := Stats("")
	if stats.Words != 0 || stats.Paragraphs != 1 || stats.IsDialogue {
		t.Errorf("unexpected stats for empty text: %+v", stats)
	}
}
