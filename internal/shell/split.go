// Package shell is the interactive core of mimir: the tokenizer, the
// command router and the session loop that ties prompt, history and
// dispatch together.
package shell

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned for input with an unclosed quote.
var ErrUnterminatedQuote = errors.New("no closing quotation")

// Split tokenizes a command line with shell-style quoting: single and
// double quotes group words, backslash escapes the next character
// outside single quotes. A quoted empty string survives as an empty
// token so validation can reject it downstream.
func Split(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	args := make([]string, 0, 8)
	var current strings.Builder
	inSingle := false
	inDouble := false
	escaped := false
	quoted := false
	flush := func() {
		if !quoted && current.Len() == 0 {
			return
		}
		args = append(args, current.String())
		current.Reset()
		quoted = false
	}

	for _, r := range trimmed {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			quoted = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			quoted = true
		case unicode.IsSpace(r) && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if inSingle || inDouble {
		return nil, ErrUnterminatedQuote
	}
	// A trailing backslash escapes nothing; keep it literal.
	if escaped {
		current.WriteRune('\\')
	}
	flush()

	return args, nil
}
