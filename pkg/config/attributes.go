package config

import (
	"fmt"
	"strconv"
	"strings"
)

// AttributeError reports a malformed attribute mapping in a legacy
// Description line.
type AttributeError struct {
	// Line is the configuration line, or 0 when parsed standalone.
	Line    int
	Message string
}

func (e *AttributeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid attributes: %s", e.Line, e.Message)
	}
	return "invalid attributes: " + e.Message
}

// ParseAttributes parses an attribute mapping such as
//
//	{'delimiter': ',', 'tag_delimiter': '=', 'start': 100}
//
// Keys may be quoted or bare. Values are quoted strings or decimal
// integers. An empty string is the same as {}. Only the delimiter, tag
// delimiter and start attributes are accepted; the returned SourceConfig
// has those fields set.
func ParseAttributes(s string) (SourceConfig, error) {
	var cfg SourceConfig

	p := &attrParser{in: strings.TrimSpace(s)}
	if p.in == "" {
		return cfg, nil
	}

	if err := p.expect('{'); err != nil {
		return cfg, err
	}
	seen := make(map[string]bool)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			break
		}

		key, err := p.key()
		if err != nil {
			return cfg, err
		}
		if err := p.expect(':'); err != nil {
			return cfg, err
		}
		val, err := p.value()
		if err != nil {
			return cfg, err
		}

		field := canonicalAttribute(key)
		if field == "" {
			return cfg, p.errorf("unknown attribute %q", key)
		}
		if seen[field] {
			return cfg, p.errorf("duplicate attribute %q", key)
		}
		seen[field] = true

		switch field {
		case "delimiter", "tagDelimiter":
			if !val.quoted {
				return cfg, p.errorf("attribute %q must be a string", key)
			}
			if val.text == "" {
				return cfg, p.errorf("attribute %q must not be empty", key)
			}
			if field == "delimiter" {
				cfg.Delimiter = val.text
			} else {
				cfg.TagDelimiter = val.text
			}
		case "start":
			if val.quoted {
				return cfg, p.errorf("attribute %q must be an integer", key)
			}
			n, err := strconv.ParseInt(val.text, 10, 64)
			if err != nil {
				return cfg, p.errorf("attribute %q: %v", key, err)
			}
			cfg.Start = &n
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return cfg, p.errorf("expected ',' or '}'")
		}
	}

	p.skipSpace()
	if p.pos < len(p.in) {
		return cfg, p.errorf("unexpected %q after '}'", p.in[p.pos:])
	}
	return cfg, nil
}

func canonicalAttribute(key string) string {
	switch key {
	case "delimiter", "Delimiter":
		return "delimiter"
	case "tag_delimiter", "TagDelimiter", "tagDelimiter":
		return "tagDelimiter"
	case "start", "Start":
		return "start"
	}
	return ""
}

type attrValue struct {
	text   string
	quoted bool
}

type attrParser struct {
	in  string
	pos int
}

func (p *attrParser) errorf(format string, args ...any) *AttributeError {
	return &AttributeError{Message: fmt.Sprintf("at offset %d: ", p.pos) + fmt.Sprintf(format, args...)}
}

func (p *attrParser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *attrParser) skipSpace() {
	for p.pos < len(p.in) && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

func (p *attrParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.pos >= len(p.in) {
			return p.errorf("expected %q, found end of input", c)
		}
		return p.errorf("expected %q, found %q", c, p.in[p.pos])
	}
	p.pos++
	return nil
}

func (p *attrParser) key() (string, error) {
	p.skipSpace()
	if c := p.peek(); c == '\'' || c == '"' {
		return p.quoted()
	}
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c != '_' && !isAlpha(c) && !isDigit(c) {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected attribute name")
	}
	return p.in[start:p.pos], nil
}

func (p *attrParser) value() (attrValue, error) {
	p.skipSpace()
	if c := p.peek(); c == '\'' || c == '"' {
		s, err := p.quoted()
		return attrValue{text: s, quoted: true}, err
	}
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.in) && isDigit(p.in[p.pos]) {
		p.pos++
	}
	text := p.in[start:p.pos]
	if text == "" || text == "-" || text == "+" {
		p.pos = start
		return attrValue{}, p.errorf("expected string or integer value")
	}
	return attrValue{text: text}, nil
}

func (p *attrParser) quoted() (string, error) {
	quote := p.in[p.pos]
	p.pos++

	var sb strings.Builder
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		p.pos++
		switch {
		case c == quote:
			return sb.String(), nil
		case c == '\\':
			if p.pos >= len(p.in) {
				return "", p.errorf("unterminated escape")
			}
			e := p.in[p.pos]
			p.pos++
			switch e {
			case '\\', '\'', '"':
				sb.WriteByte(e)
			case 't':
				sb.WriteByte('\t')
			case 'n':
				sb.WriteByte('\n')
			default:
				return "", p.errorf("unknown escape \\%c", e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
