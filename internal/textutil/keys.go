package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// FoldKey returns the case-normalized form of a feature description: Unicode
// case folded, trimmed, and with internal whitespace collapsed to single
// spaces. Two descriptions that differ only in case share a key.
func FoldKey(value string) string {
	folded := cases.Fold().String(value)
	return strings.Join(strings.Fields(folded), " ")
}

// PhraseKey folds value and additionally treats punctuation as word breaks, so
// "Serrated-Leaf" and "serrated leaf" compare equal. Used for matching catalog
// names and tags against detected text.
func PhraseKey(value string) string {
	return strings.Join(Tokens(value), " ")
}

// Tokens splits value into folded alphanumeric words.
func Tokens(value string) []string {
	folded := cases.Fold().String(value)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries after
// both are reduced with PhraseKey.
func ContainsPhrase(text, phrase string) bool {
	p := PhraseKey(phrase)
	if p == "" {
		return false
	}
	t := " " + PhraseKey(text) + " "
	return strings.Contains(t, " "+p+" ")
}
