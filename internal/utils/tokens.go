package utils

import "unicode/utf8"

// CharsPerToken is the rough characters-per-token ratio of common BPE
// tokenizers on English prose and JSON.
const CharsPerToken = 4

// CountTokens estimates the token count of text. Any non-empty text
// counts as at least one token.
func CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if n < CharsPerToken {
		return 1
	}
	return n / CharsPerToken
}

// FitsContext reports whether a prompt plus the reserved completion budget
// fits a context window. A non-positive window is treated as unknown and fits.
func FitsContext(promptTokens, completionBudget, window int) bool {
	if window <= 0 {
		return true
	}
	return promptTokens+completionBudget <= window
}
