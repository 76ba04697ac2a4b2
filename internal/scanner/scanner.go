// Package scanner finds matching delimiters in raw source text.
//
// The scan is lexical: it tracks nesting depth, double-quoted string literals
// and backslash escapes inside them. It does not understand character
// literals, comments or raw strings, so a '"' or '{' written as a character
// literal can desynchronise it.
package scanner

import (
	"bytes"
	"errors"
)

var (
	ErrNoOpen     = errors.New("no opening delimiter at offset")
	ErrUnbalanced = errors.New("unbalanced delimiters: reached end of buffer")
)

type Scanner struct {
	Open   byte
	Close  byte
	Quote  byte
	Escape byte
}

// C scans braces in C source.
var C = Scanner{Open: '{', Close: '}', Quote: '"', Escape: '\\'}

// MatchClose returns the offset one past the delimiter that closes the one
// at buf[open].
func (s Scanner) MatchClose(buf []byte, open int) (int, error) {
	if open < 0 || open >= len(buf) || buf[open] != s.Open {
		return -1, ErrNoOpen
	}

	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(buf); i++ {
		ch := buf[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case ch == s.Escape && inString:
			escaped = true
		case ch == s.Quote:
			inString = !inString
		case inString:
		case ch == s.Open:
			depth++
		case ch == s.Close:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}

	return -1, ErrUnbalanced
}

// FindOpen returns the offset of the first opening delimiter at or after
// from, or -1.
func (s Scanner) FindOpen(buf []byte, from int) int {
	if from < 0 || from >= len(buf) {
		return -1
	}
	idx := bytes.IndexByte(buf[from:], s.Open)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func MatchClose(buf []byte, open int) (int, error) {
	return C.MatchClose(buf, open)
}

func FindOpen(buf []byte, from int) int {
	return C.FindOpen(buf, from)
}
