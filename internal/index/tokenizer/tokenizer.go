// Package tokenizer normalises raw paragraph text into the word sequence the
// index is keyed on. It lower-cases input, splits on non-alphanumeric
// boundaries, and discards tokens shorter than two characters.
//
// The same normalisation is applied at ingestion time, rebuild time, and to
// query words, so index contents and lookups stay consistent.
package tokenizer

import (
	"strings"
	"unicode"
)

const minTokenLen = 2

// Tokenize breaks text into normalised words, preserving multiplicity.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, word := range words {
		if len([]rune(word)) < minTokenLen {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Counts returns the occurrence count of each normalised word in text.
func Counts(text string) map[string]int64 {
	counts := make(map[string]int64)
	for _, word := range Tokenize(text) {
		counts[word]++
	}
	return counts
}

// UniqueSet returns the set of distinct normalised words in text.
func UniqueSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range Tokenize(text) {
		set[word] = struct{}{}
	}
	return set
}

// NormalizeWord normalises a single query word the same way Tokenize
// normalises document text. It returns "" when nothing indexable remains,
// e.g. for punctuation-only or single-character input.
func NormalizeWord(word string) string {
	tokens := Tokenize(word)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}
