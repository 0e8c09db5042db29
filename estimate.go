package aipostblog

import "unicode/utf8"

// admissionOverhead covers the system prompt and expected output.
const admissionOverhead = 500

// EstimateTokens estimates the tokens a generation will consume from its
// input text: about two characters per token plus a fixed overhead.
func EstimateTokens(input string) int64 {
	return estimateTextTokens(input) + admissionOverhead
}

// estimateTextTokens is ceil(chars/2).
func estimateTextTokens(s string) int64 {
	n := int64(utf8.RuneCountInString(s))
	return (n + 1) / 2
}
