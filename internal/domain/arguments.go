package domain

import "strings"

// ParseArguments splits a raw argument string into tokens.
//
// Unquoted whitespace separates tokens. Inside double quotes, \" and \\ are
// unescaped and every other character is literal. Inside single quotes,
// everything is literal. Quoted and unquoted parts that touch are joined into
// one token, and an unterminated quote runs to the end of the string.
// An empty input yields an empty, non-nil slice.
func ParseArguments(s string) []string {
	args := []string{}

	var cur strings.Builder
	inToken := false
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			inToken = true
			for i++; i < len(runes) && runes[i] != '"'; i++ {
				if runes[i] == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
					i++
				}
				cur.WriteRune(runes[i])
			}
		case r == '\'':
			inToken = true
			for i++; i < len(runes) && runes[i] != '\''; i++ {
				cur.WriteRune(runes[i])
			}
		case r == '\\':
			inToken = true
			if i+1 < len(runes) {
				i++
			}
			cur.WriteRune(runes[i])
		case isArgumentSpace(r):
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			inToken = true
			cur.WriteRune(r)
		}
	}

	if inToken {
		args = append(args, cur.String())
	}
	return args
}

func isArgumentSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}
