// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

package analysis

import "strings"

// logicalLine is one Python logical line: possibly several physical
// lines joined by an explicit backslash continuation, an unmatched
// bracket, or a triple-quoted string literal that spans lines.
type logicalLine struct {
	// StartLine is the physical line the logical line begins on.
	StartLine int
	// EndLine is the last physical line it spans (== StartLine for a
	// single-line statement).
	EndLine int
	// Indent is the number of leading whitespace characters on
	// StartLine (tabs counted as one column; Python's own tokenizer is
	// stricter about mixed tabs/spaces, which this analyser does not
	// attempt to validate).
	Indent int
	// Text is the logical line's source with leading indentation and
	// trailing comment stripped, continuation backslashes removed and
	// physical-line breaks folded to a single space. Good enough to
	// classify the statement's keyword and find a trailing ':'.
	Text string
	// Blank is true for a line that carries no statement (blank or
	// comment-only).
	Blank bool
	// StringOnly is true when Text is a single string-literal
	// expression (a docstring candidate).
	StringOnly bool
}

// tokenizeLogicalLines splits src into logical lines. It is a
// line-oriented scanner, not a full Python tokenizer: it tracks string
// literals (to avoid being confused by '#', brackets or quotes inside
// them), bracket nesting and backslash continuation, which is enough to
// find each statement's starting line and indentation.
func tokenizeLogicalLines(src string) []logicalLine {
	lines := strings.Split(src, "\n")
	var out []logicalLine

	depth := 0
	var pending strings.Builder
	pendingStart := -1
	pendingBlank := true
	inTripleQuote := false
	var tripleQuote string

	flush := func(endLine int) {
		if pendingStart < 0 {
			return
		}
		text := strings.TrimSpace(pending.String())
		out = append(out, logicalLine{
			StartLine:  pendingStart,
			EndLine:    endLine,
			Indent:     leadingWidth(lines[pendingStart-1]),
			Text:       text,
			Blank:      pendingBlank && text == "",
			StringOnly: isStringLiteralOnly(text),
		})
		pending.Reset()
		pendingStart = -1
		pendingBlank = true
	}

	for i, raw := range lines {
		lineNo := i + 1
		code, blankLine := stripCommentAndTrackStrings(raw, &depth, &inTripleQuote, &tripleQuote)
		trimmed := strings.TrimSpace(code)

		if pendingStart < 0 {
			if trimmed == "" && depth == 0 && !inTripleQuote {
				// A genuinely blank or comment-only line: record it on
				// its own so callers can see it was skipped, but don't
				// start accumulating a logical line for it.
				out = append(out, logicalLine{StartLine: lineNo, EndLine: lineNo, Indent: leadingWidth(raw), Blank: true})
				continue
			}
			pendingStart = lineNo
			pendingBlank = blankLine
		}
		piece := trimmed
		if endsWithContinuation(code) {
			piece = strings.TrimSpace(strings.TrimSuffix(piece, `\`))
		}
		if pending.Len() > 0 {
			pending.WriteByte(' ')
		}
		pending.WriteString(piece)
		if !blankLine {
			pendingBlank = false
		}

		continues := depth > 0 || inTripleQuote || endsWithContinuation(code)
		if !continues {
			flush(lineNo)
		}
	}
	flush(len(lines))
	return out
}

// leadingWidth counts leading whitespace characters.
func leadingWidth(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}

// endsWithContinuation reports whether code (with comment already
// stripped) ends with an explicit backslash line continuation.
func endsWithContinuation(code string) bool {
	trimmed := strings.TrimRight(code, " \t")
	return strings.HasSuffix(trimmed, `\`) && !strings.HasSuffix(trimmed, `\\`)
}

// stripCommentAndTrackStrings removes a trailing '#' comment from raw,
// updates *depth (bracket nesting) and *inTriple/*quote (whether the
// line ends inside a triple-quoted string), and reports whether the
// remaining code is empty (i.e. the line was blank or comment-only).
func stripCommentAndTrackStrings(raw string, depth *int, inTriple *bool, tripleQuote *string) (code string, blank bool) {
	var b strings.Builder
	i := 0
	n := len(raw)
	for i < n {
		c := raw[i]

		if *inTriple {
			if strings.HasPrefix(raw[i:], *tripleQuote) {
				b.WriteString(*tripleQuote)
				i += len(*tripleQuote)
				*inTriple = false
				continue
			}
			b.WriteByte(c)
			i++
			continue
		}

		switch {
		case c == '#':
			i = n // rest of line is a comment
		case c == '\'' || c == '"':
			if q := tripleAt(raw, i, c); q != "" {
				*tripleQuote = q
				*inTriple = true
				b.WriteString(q)
				i += len(q)
				continue
			}
			end := scanSingleLineString(raw, i, c)
			b.WriteString(raw[i:end])
			i = end
		case c == '(' || c == '[' || c == '{':
			*depth++
			b.WriteByte(c)
			i++
		case c == ')' || c == ']' || c == '}':
			if *depth > 0 {
				*depth--
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	code = b.String()
	blank = strings.TrimSpace(code) == ""
	return code, blank
}

// tripleAt reports the triple-quote delimiter starting at raw[i] if
// raw[i:] begins with one (allowing a preceding string-prefix letter
// already consumed by the caller), else "".
func tripleAt(raw string, i int, q byte) string {
	triple := string(q) + string(q) + string(q)
	if strings.HasPrefix(raw[i:], triple) {
		return triple
	}
	return ""
}

// scanSingleLineString returns the index just past the closing quote
// of a single/double-quoted string starting at raw[start], handling
// backslash escapes. If unterminated, it returns len(raw).
func scanSingleLineString(raw string, start int, q byte) int {
	i := start + 1
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			i += 2
			continue
		}
		if raw[i] == q {
			return i + 1
		}
		i++
	}
	return len(raw)
}

// isStringLiteralOnly reports whether text is nothing but a single
// string-literal expression statement (a docstring candidate), after
// prefix letters like r/b/u/f have been accounted for.
func isStringLiteralOnly(text string) bool {
	if text == "" {
		return false
	}
	i := 0
	for i < len(text) && isStringPrefixByte(text[i]) {
		i++
	}
	if i >= len(text) {
		return false
	}
	q := text[i]
	if q != '\'' && q != '"' {
		return false
	}
	rest := text[i:]
	quote := string(q)
	if strings.HasPrefix(rest, quote+quote+quote) {
		quote = quote + quote + quote
	}
	if !strings.HasSuffix(rest, quote) || len(rest) < 2*len(quote) {
		return false
	}
	return true
}

func isStringPrefixByte(b byte) bool {
	switch b {
	case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
		return true
	}
	return false
}
