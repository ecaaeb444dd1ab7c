package template

import (
	"sort"
	"strings"
)

type tagKind int

const (
	tokText tagKind = iota
	tokMustache
	tokRaw
	tokBlockOpen
	tokInverseOpen
	tokElse
	tokClose
	tokComment
)

type token struct {
	kind       tagKind
	text       string
	offset     int
	stripLeft  bool
	stripRight bool
}

// standalone tags swallow the whitespace of the line they sit on alone.
func (t *token) standaloneCandidate() bool {
	switch t.kind {
	case tokBlockOpen, tokInverseOpen, tokElse, tokClose, tokComment:
		return true
	}
	return false
}

// positions maps byte offsets to 1-based line and column.
type positions struct {
	lineStarts []int
}

func newPositions(src string) *positions {
	p := &positions{lineStarts: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			p.lineStarts = append(p.lineStarts, i+1)
		}
	}
	return p
}

func (p *positions) at(offset int) (int, int) {
	line := sort.Search(len(p.lineStarts), func(i int) bool { return p.lineStarts[i] > offset }) - 1
	return line + 1, offset - p.lineStarts[line] + 1
}

type lexer struct {
	src  string
	pos  *positions
	toks []token
}

func (l *lexer) errorf(offset int, msg string) *ParseError {
	line, col := l.pos.at(offset)
	return &ParseError{Line: line, Column: col, Msg: msg}
}

func (l *lexer) text(s string, offset int) {
	if s == "" {
		return
	}
	if n := len(l.toks); n > 0 && l.toks[n-1].kind == tokText {
		l.toks[n-1].text += s
		return
	}
	l.toks = append(l.toks, token{kind: tokText, text: s, offset: offset})
}

// lex splits src into text and tag tokens.
func lex(src string, pos *positions) ([]token, error) {
	l := &lexer{src: src, pos: pos}
	i := 0
	for i < len(src) {
		idx := strings.Index(src[i:], "{{")
		if idx < 0 {
			l.text(src[i:], i)
			break
		}
		start := i + idx

		if start > i && src[start-1] == '\\' {
			if start-1 > i && src[start-2] == '\\' {
				// "\\{{" is a literal backslash followed by a real tag
				l.text(src[i:start-1], i)
			} else {
				l.text(src[i:start-1], i)
				next := strings.Index(src[start+2:], "{{")
				end := len(src)
				if next >= 0 {
					end = start + 2 + next
				}
				l.text(src[start:end], start)
				i = end
				continue
			}
		} else {
			l.text(src[i:start], i)
		}

		end, err := l.tag(start)
		if err != nil {
			return nil, err
		}
		i = end
	}
	applyStandalone(l.toks)
	applyStrip(l.toks)
	return l.toks, nil
}

// tag scans the tag starting at start and returns the offset after it.
func (l *lexer) tag(start int) (int, error) {
	src := l.src
	p := start + 2
	tok := token{offset: start}
	if p < len(src) && src[p] == '~' {
		tok.stripLeft = true
		p++
	}

	if strings.HasPrefix(src[p:], "!") {
		tok.kind = tokComment
		closer := "}}"
		if strings.HasPrefix(src[p:], "!--") {
			closer = "--"
		}
		for k := p + 1; k < len(src); k++ {
			if !strings.HasPrefix(src[k:], closer) {
				continue
			}
			q := k + len(closer)
			if closer == "--" {
				if strings.HasPrefix(src[q:], "~}}") {
					tok.stripRight = true
					q += 3
				} else if strings.HasPrefix(src[q:], "}}") {
					q += 2
				} else {
					continue
				}
			} else if k > p && src[k-1] == '~' {
				tok.stripRight = true
			}
			l.toks = append(l.toks, tok)
			return q, nil
		}
		return 0, l.errorf(start, "unterminated comment")
	}

	triple := p < len(src) && src[p] == '{'
	if triple {
		p++
	}
	end := scanTagEnd(src, p)
	if end < 0 {
		return 0, l.errorf(start, "unclosed tag, expected '}}'")
	}
	inner := src[p:end]
	q := end + 2
	if triple {
		if !strings.HasPrefix(src[q:], "}") {
			return 0, l.errorf(start, "expected '}}}' to close '{{{'")
		}
		q++
	}
	if strings.HasSuffix(inner, "~") {
		tok.stripRight = true
		inner = inner[:len(inner)-1]
	}
	if triple {
		tok.kind = tokRaw
		tok.text = inner
		l.toks = append(l.toks, tok)
		return q, nil
	}

	trimmed := strings.TrimSpace(inner)
	switch {
	case trimmed == "":
		return 0, l.errorf(start, "empty tag")
	case trimmed[0] == '&':
		tok.kind, tok.text = tokRaw, trimmed[1:]
	case trimmed[0] == '#':
		if strings.HasPrefix(trimmed, "#>") || strings.HasPrefix(trimmed, "#*") {
			return 0, l.errorf(start, "partials and decorators are not supported")
		}
		tok.kind, tok.text = tokBlockOpen, trimmed[1:]
	case trimmed[0] == '^':
		if strings.TrimSpace(trimmed[1:]) == "" {
			tok.kind = tokElse
		} else {
			tok.kind, tok.text = tokInverseOpen, trimmed[1:]
		}
	case trimmed[0] == '/':
		tok.kind, tok.text = tokClose, strings.TrimSpace(trimmed[1:])
	case trimmed[0] == '>':
		return 0, l.errorf(start, "partials are not supported")
	case trimmed == "else" || strings.HasPrefix(trimmed, "else ") || strings.HasPrefix(trimmed, "else\t") || strings.HasPrefix(trimmed, "else\n"):
		tok.kind, tok.text = tokElse, strings.TrimSpace(trimmed[4:])
	default:
		tok.kind, tok.text = tokMustache, trimmed
	}
	l.toks = append(l.toks, tok)
	return q, nil
}

// scanTagEnd finds the "}}" closing a tag, skipping quoted strings.
func scanTagEnd(src string, from int) int {
	var quote byte
	for k := from; k < len(src); k++ {
		c := src[k]
		if quote != 0 {
			if c == '\\' && k+1 < len(src) {
				k++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '}':
			if k+1 < len(src) && src[k+1] == '}' {
				return k
			}
		}
	}
	return -1
}

// applyStandalone removes the indentation and line break around block,
// else and comment tags that are alone on their line.
func applyStandalone(toks []token) {
	type trim struct{ left, right bool }
	trims := make([]trim, len(toks))
	for i := range toks {
		if !toks[i].standaloneCandidate() {
			continue
		}
		prevOK := i == 0
		if !prevOK && toks[i-1].kind == tokText {
			t := toks[i-1].text
			nl := strings.LastIndexByte(t, '\n')
			prevOK = isBlank(t[nl+1:]) && (nl >= 0 || i-1 == 0)
		}
		nextOK := i == len(toks)-1
		if !nextOK && toks[i+1].kind == tokText {
			t := toks[i+1].text
			nl := strings.IndexByte(t, '\n')
			if nl >= 0 {
				nextOK = isBlank(strings.TrimSuffix(t[:nl], "\r"))
			} else {
				nextOK = i+1 == len(toks)-1 && isBlank(t)
			}
		}
		if !prevOK || !nextOK {
			continue
		}
		if i > 0 {
			trims[i-1].right = true
		}
		if i < len(toks)-1 {
			trims[i+1].left = true
		}
	}
	for i := range toks {
		if toks[i].kind != tokText {
			continue
		}
		t := toks[i].text
		if trims[i].right {
			t = t[:strings.LastIndexByte(t, '\n')+1]
		}
		if trims[i].left {
			if nl := strings.IndexByte(t, '\n'); nl >= 0 {
				t = t[nl+1:]
			} else {
				t = ""
			}
		}
		toks[i].text = t
	}
}

func isBlank(s string) bool {
	return strings.Trim(s, " \t") == ""
}

// applyStrip honours "~" whitespace control.
func applyStrip(toks []token) {
	for i := range toks {
		if toks[i].kind == tokText {
			continue
		}
		if toks[i].stripLeft && i > 0 && toks[i-1].kind == tokText {
			toks[i-1].text = strings.TrimRight(toks[i-1].text, " \t\r\n")
		}
		if toks[i].stripRight && i < len(toks)-1 && toks[i+1].kind == tokText {
			toks[i+1].text = strings.TrimLeft(toks[i+1].text, " \t\r\n")
		}
	}
}
