package decoder

import "strings"

// Tokenize splits a backend transcript into recognizer tokens.
func Tokenize(transcript string) []string {
	return strings.Fields(transcript)
}
