package normalize

import "strings"

// terms maps spoken phrases to the symbol or literal they stand for.
// Phrases are matched before number words.
var terms = map[string]string{
	"open paren":        "(",
	"open parenthesis":  "(",
	"left paren":        "(",
	"close paren":       ")",
	"close parenthesis": ")",
	"right paren":       ")",
	"open bracket":      "[",
	"close bracket":     "]",
	"open brace":        "{",
	"open curly":        "{",
	"close brace":       "}",
	"close curly":       "}",

	"semicolon":  ";",
	"colon":      ":",
	"comma":      ",",
	"dot":        ".",
	"underscore": "_",
	"quote":      `"`,

	"equals":        "=",
	"double equals": "==",
	"not equals":    "!=",
	"plus":          "+",
	"minus":         "-",
	"times":         "*",
	"divide":        "/",
	"greater than":  ">",
	"less than":     "<",
	"arrow":         "->",

	"null":         "null",
	"true":         "true",
	"false":        "false",
	"empty string": `""`,
}

var maxTermWords = func() int {
	n := 0
	for phrase := range terms {
		n = max(n, strings.Count(phrase, " ")+1)
	}
	return n
}()

// matchTerm returns the symbol for the longest term phrase starting at
// tokens[i] and the number of tokens it spans, or 0 when none matches.
func matchTerm(tokens []string, i int) (string, int) {
	for n := min(maxTermWords, len(tokens)-i); n > 0; n-- {
		words := make([]string, n)
		for j := range words {
			words[j] = strings.ToLower(tokens[i+j])
		}
		if sym, ok := terms[strings.Join(words, " ")]; ok {
			return sym, n
		}
	}
	return "", 0
}

func termStartsAt(tokens []string, i int) bool {
	_, n := matchTerm(tokens, i)
	return n > 0
}
