package textutil_test

import (
	"testing"

	"leaflens/internal/textutil"
)

func TestFoldKey(t *testing.T) {
	if got := textutil.FoldKey("  Serrated   LEAF "); got != "serrated leaf" {
		t.Fatalf("FoldKey = %q", got)
	}
	if textutil.FoldKey("Leaf") != textutil.FoldKey("lEAF") {
		t.Fatal("expected case-insensitive keys to match")
	}
}

func TestPhraseKeyBreaksOnPunctuation(t *testing.T) {
	if got := textutil.PhraseKey("Serrated-Leaf, (toothed)"); got != "serrated leaf toothed" {
		t.Fatalf("PhraseKey = %q", got)
	}
}

func TestContainsPhrase(t *testing.T) {
	text := "Label: MONSTERA DELICIOSA\nFamily Araceae"
	if !textutil.ContainsPhrase(text, "Monstera deliciosa") {
		t.Fatal("expected name to be found")
	}
	if textutil.ContainsPhrase(text, "Monster") {
		t.Fatal("expected partial word not to match")
	}
	if textutil.ContainsPhrase(text, "  ") {
		t.Fatal("expected blank phrase not to match")
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"IMG 0001.JPG":         "IMG-0001.jpg",
		"../../etc/passwd":     "passwd",
		`C:\photos\leaf?.png`:  "leaf.png",
		"   ":                  "image.jpg",
		"report#1&final.jpeg":  "report1final.jpeg",
	}
	for input, want := range tests {
		if got := textutil.SanitizeFileName(input, "image.jpg"); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := textutil.SanitizeToken("User@Example.com"); got != "user_example_com" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := textutil.SanitizeToken(""); got != "unknown" {
		t.Fatalf("SanitizeToken blank = %q", got)
	}
}
