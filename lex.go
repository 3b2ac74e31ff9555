/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenError tokenKind = iota
	tokenEOF
	tokenKey
	tokenValue
)

const (
	eof            = -1
	keyTerminators = " \f\t\r\n:="
	blanks         = " \f\t"
	hexDigits      = "0123456789abcdefABCDEF"
)

type token struct {
	kind tokenKind
	pos  int
	text string
}

func (t token) String() string {
	switch {
	case t.kind == tokenEOF:
		return "EOF"
	case t.kind == tokenError:
		return t.text
	case len(t.text) > 10:
		return fmt.Sprintf("%.10q...", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

type scanFn func(*propScanner) scanFn

/**
Scanner of the java-style properties format. Lines starting with '#' or
'!' are comments, keys end at the first unescaped separator, values
support escape sequences, unicode literals and line continuations.
*/

type propScanner struct {
	input  string
	pos    int
	start  int
	width  int
	buf    []rune
	tokens []token
}

func scanProperties(input string) []token {
	t := &propScanner{
		input: input,
		buf:   make([]rune, 0, 32),
	}
	for state := scanBeforeKey; state != nil; {
		state = state(t)
	}
	return t.tokens
}

func (t *propScanner) next() rune {
	if t.pos >= len(t.input) {
		t.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(t.input[t.pos:])
	t.width = w
	t.pos += w
	return r
}

func (t *propScanner) backup() {
	t.pos -= t.width
}

func (t *propScanner) peek() rune {
	r := t.next()
	t.backup()
	return r
}

func (t *propScanner) skipRun(valid string) {
	for strings.ContainsRune(valid, t.next()) {
	}
	t.backup()
}

func (t *propScanner) emit(kind tokenKind) {
	t.tokens = append(t.tokens, token{kind, t.start, string(t.buf)})
	t.start = t.pos
	t.buf = t.buf[:0]
}

func (t *propScanner) discard() {
	t.start = t.pos
}

func (t *propScanner) fail(format string, args ...interface{}) scanFn {
	t.tokens = append(t.tokens, token{tokenError, t.start, fmt.Sprintf(format, args...)})
	return nil
}

func scanBeforeKey(t *propScanner) scanFn {
	switch r := t.next(); {
	case r == eof:
		t.emit(tokenEOF)
		return nil

	case isLineBreak(r):
		t.discard()
		return scanBeforeKey

	case r == '#' || r == '!':
		return scanComment

	case strings.ContainsRune(blanks, r):
		t.discard()
		return scanBeforeKey

	default:
		t.backup()
		return scanKey
	}
}

func scanComment(t *propScanner) scanFn {
	for {
		switch r := t.next(); {
		case r == eof:
			t.discard()
			t.emit(tokenEOF)
			return nil
		case isLineBreak(r):
			t.discard()
			return scanBeforeKey
		}
	}
}

func scanKey(t *propScanner) scanFn {
	for {
		switch r := t.next(); {

		case r == '\\':
			if err := t.scanEscape(); err != nil {
				return t.fail(err.Error())
			}

		case strings.ContainsRune(keyTerminators, r):
			t.backup()
			t.emitKey()
			return scanBeforeValue

		case r == eof:
			t.emitKey()
			t.emit(tokenEOF)
			return nil

		default:
			t.buf = append(t.buf, r)
		}
	}
}

func (t *propScanner) emitKey() {
	if len(t.buf) > 0 {
		t.emit(tokenKey)
	}
}

func scanBeforeValue(t *propScanner) scanFn {
	t.skipRun(blanks)
	if r := t.next(); r != ':' && r != '=' {
		t.backup()
	}
	t.skipRun(blanks)
	t.discard()
	return scanValue
}

func scanValue(t *propScanner) scanFn {
	for {
		switch r := t.next(); {

		case r == '\\':
			// a backslash before the line break continues the value
			if isLineBreak(t.peek()) {
				t.next()
				t.skipRun(blanks)
			} else if err := t.scanEscape(); err != nil {
				return t.fail(err.Error())
			}

		case isLineBreak(r):
			t.emit(tokenValue)
			t.discard()
			return scanBeforeKey

		case r == eof:
			t.emit(tokenValue)
			t.emit(tokenEOF)
			return nil

		default:
			t.buf = append(t.buf, r)
		}
	}
}

func (t *propScanner) scanEscape() error {
	switch r := t.next(); r {
	case 'f':
		t.buf = append(t.buf, '\f')
	case 'n':
		t.buf = append(t.buf, '\n')
	case 'r':
		t.buf = append(t.buf, '\r')
	case 't':
		t.buf = append(t.buf, '\t')
	case 'u':
		return t.scanUnicodeLiteral()
	case eof:
		return fmt.Errorf("premature EOF")
	default:
		t.buf = append(t.buf, r)
	}
	return nil
}

func (t *propScanner) scanUnicodeLiteral() error {

	d := make([]rune, 4)
	for i := 0; i < 4; i++ {
		d[i] = t.next()
		if d[i] == eof || !strings.ContainsRune(hexDigits, d[i]) {
			return fmt.Errorf("invalid unicode literal")
		}
	}

	r, err := strconv.ParseInt(string(d), 16, 0)
	if err != nil {
		return err
	}

	t.buf = append(t.buf, rune(r))
	return nil
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}
