package uslm

import (
	"bytes"
	"strconv"
	"strings"
)

// tagEventKind discriminates lexer output.
type tagEventKind int

const (
	tagEventText tagEventKind = iota
	tagEventOpen
	tagEventClose
)

// tagEvent is one markup event from the lexer: an element open (with
// attributes and a self-closing flag), an element close, or a text run.
type tagEvent struct {
	kind        tagEventKind
	name        string
	attrs       map[string]string
	text        string
	selfClosing bool
}

// lexer is a push-fed XML tokenizer. Callers append bytes with write and
// pull events with next; next only consumes complete constructs, so text is
// held until the next '<' arrives and entities are never split across chunk
// boundaries. Comments, processing instructions, and DOCTYPE declarations
// are consumed silently; CDATA becomes a text event.
type lexer struct {
	buf    []byte
	closed bool
}

func (lx *lexer) write(p []byte) {
	lx.buf = append(lx.buf, p...)
}

func (lx *lexer) close() {
	lx.closed = true
}

// next returns the next complete event, or ok=false when more input is
// needed. After close, incomplete trailing input is discarded.
func (lx *lexer) next() (tagEvent, bool) {
	for {
		if len(lx.buf) == 0 {
			return tagEvent{}, false
		}

		if lx.buf[0] != '<' {
			i := bytes.IndexByte(lx.buf, '<')
			if i < 0 {
				if lx.closed {
					lx.buf = nil
				}
				return tagEvent{}, false
			}
			text := unescapeXML(string(lx.buf[:i]))
			lx.buf = lx.buf[i:]
			return tagEvent{kind: tagEventText, text: text}, true
		}

		ev, consumed, ok := lx.scanMarkup()
		if !ok {
			if lx.closed {
				lx.buf = nil
			}
			return tagEvent{}, false
		}
		lx.buf = lx.buf[consumed:]
		if ev == nil {
			continue // comment, PI, or DOCTYPE
		}
		return *ev, true
	}
}

// scanMarkup inspects the buffer, which starts with '<', and returns the
// event (nil for silently-consumed constructs), the byte count consumed,
// and whether a complete construct was available.
func (lx *lexer) scanMarkup() (*tagEvent, int, bool) {
	b := lx.buf
	if len(b) < 2 {
		return nil, 0, false
	}

	switch b[1] {
	case '!':
		if hasIncompletePrefix(b, "<!--") {
			return nil, 0, false
		}
		if bytes.HasPrefix(b, []byte("<!--")) {
			end := bytes.Index(b[4:], []byte("-->"))
			if end < 0 {
				return nil, 0, false
			}
			return nil, 4 + end + 3, true
		}
		if hasIncompletePrefix(b, "<![CDATA[") {
			return nil, 0, false
		}
		if bytes.HasPrefix(b, []byte("<![CDATA[")) {
			end := bytes.Index(b[9:], []byte("]]>"))
			if end < 0 {
				return nil, 0, false
			}
			text := string(b[9 : 9+end])
			return &tagEvent{kind: tagEventText, text: text}, 9 + end + 3, true
		}
		// DOCTYPE and friends; the internal subset may nest brackets.
		depth := 0
		for i := 2; i < len(b); i++ {
			switch b[i] {
			case '[':
				depth++
			case ']':
				depth--
			case '>':
				if depth <= 0 {
					return nil, i + 1, true
				}
			}
		}
		return nil, 0, false

	case '?':
		end := bytes.Index(b[2:], []byte("?>"))
		if end < 0 {
			return nil, 0, false
		}
		return nil, 2 + end + 2, true

	case '/':
		end := bytes.IndexByte(b, '>')
		if end < 0 {
			return nil, 0, false
		}
		name := localName(strings.TrimSpace(string(b[2:end])))
		return &tagEvent{kind: tagEventClose, name: name}, end + 1, true

	default:
		end := tagEnd(b)
		if end < 0 {
			return nil, 0, false
		}
		inner := strings.TrimSpace(string(b[1:end]))
		selfClosing := strings.HasSuffix(inner, "/")
		if selfClosing {
			inner = strings.TrimSpace(strings.TrimSuffix(inner, "/"))
		}
		name, attrs := parseTag(inner)
		return &tagEvent{kind: tagEventOpen, name: name, attrs: attrs, selfClosing: selfClosing}, end + 1, true
	}
}

// tagEnd finds the index of the '>' terminating an open tag, skipping
// quoted attribute values. Returns -1 when incomplete.
func tagEnd(b []byte) int {
	var quote byte
	for i := 1; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '>':
			return i
		}
	}
	return -1
}

func hasIncompletePrefix(b []byte, prefix string) bool {
	if len(b) >= len(prefix) {
		return false
	}
	return strings.HasPrefix(prefix, string(b))
}

// parseTag splits the interior of an open tag into its local name and
// attribute map. Attribute values are entity-unescaped.
func parseTag(inner string) (string, map[string]string) {
	i := 0
	for i < len(inner) && !isSpaceByte(inner[i]) {
		i++
	}
	name := localName(inner[:i])
	rest := inner[i:]

	var attrs map[string]string
	for {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if rest == "" {
			break
		}
		eq := 0
		for eq < len(rest) && rest[eq] != '=' && !isSpaceByte(rest[eq]) {
			eq++
		}
		attrName := localName(rest[:eq])
		rest = strings.TrimLeft(rest[eq:], " \t\r\n")
		if rest == "" || rest[0] != '=' {
			continue // bare attribute, no value
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if rest == "" {
			break
		}
		var value string
		if rest[0] == '"' || rest[0] == '\'' {
			quote := rest[0]
			end := strings.IndexByte(rest[1:], quote)
			if end < 0 {
				break
			}
			value = rest[1 : 1+end]
			rest = rest[1+end+1:]
		} else {
			end := 0
			for end < len(rest) && !isSpaceByte(rest[end]) {
				end++
			}
			value = rest[:end]
			rest = rest[end:]
		}
		if attrName != "" {
			if attrs == nil {
				attrs = make(map[string]string)
			}
			attrs[attrName] = unescapeXML(value)
		}
	}
	return name, attrs
}

// localName strips any namespace prefix ("dc:title" -> "title").
func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// unescapeXML resolves the predefined entities and numeric character
// references. Unknown entities are passed through verbatim.
func unescapeXML(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var out strings.Builder
	out.Grow(len(s))
	for {
		i := strings.IndexByte(s, '&')
		if i < 0 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:i])
		s = s[i:]
		end := strings.IndexByte(s, ';')
		if end < 0 {
			out.WriteString(s)
			break
		}
		entity := s[1:end]
		switch {
		case entity == "amp":
			out.WriteByte('&')
		case entity == "lt":
			out.WriteByte('<')
		case entity == "gt":
			out.WriteByte('>')
		case entity == "quot":
			out.WriteByte('"')
		case entity == "apos":
			out.WriteByte('\'')
		case strings.HasPrefix(entity, "#"):
			if r, ok := parseCharRef(entity[1:]); ok {
				out.WriteRune(r)
			} else {
				out.WriteString(s[:end+1])
			}
		default:
			out.WriteString(s[:end+1])
		}
		s = s[end+1:]
	}
	return out.String()
}

func parseCharRef(ref string) (rune, bool) {
	base := 10
	if strings.HasPrefix(ref, "x") || strings.HasPrefix(ref, "X") {
		base = 16
		ref = ref[1:]
	}
	n, err := strconv.ParseUint(ref, base, 32)
	if err != nil || n == 0 || n > 0x10FFFF {
		return 0, false
	}
	return rune(n), true
}
