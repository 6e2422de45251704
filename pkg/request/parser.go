package request

import (
	"fmt"
	"strconv"
)

// Parse parses a request document into a Model. Parsing always runs to the
// end of the input: on a syntax error the parser records a diagnostic,
// skips ahead to the next ',' or ']' at the current bracket depth, and
// resumes, so that all errors in one document are reported together. The
// error count and messages are available via Model.Errors.
func Parse(src string) *Model {
	p := &parser{sc: NewScanner(src), m: NewModel()}
	p.next()
	p.parseRequest()
	return p.m
}

type parser struct {
	sc  *Scanner
	tok Token
	m   *Model
}

// next advances the lookahead token, reporting lexical errors in place.
func (p *parser) next() {
	for {
		p.tok = p.sc.Next()
		if p.tok.Kind != TokError {
			return
		}
		p.errorf(p.tok.Pos, "%s", p.tok.Text)
	}
}

func (p *parser) errorf(pos Pos, format string, args ...any) {
	p.m.addError(fmt.Sprintf("%s: %s", pos, fmt.Sprintf(format, args...)))
}

// recover skips ahead to the next ',' or ']' at the current bracket depth,
// leaving the stopping token as the lookahead.
func (p *parser) recover() {
	depth := 0
	for {
		switch p.tok.Kind {
		case TokEOF:
			return
		case TokLBracket:
			depth++
		case TokRBracket:
			if depth == 0 {
				return
			}
			depth--
		case TokComma:
			if depth == 0 {
				return
			}
		}
		p.next()
	}
}

// parseRequest parses the outermost bracketed form; the HTTP body is
// exactly one request production.
func (p *parser) parseRequest() {
	if p.tok.Kind != TokLBracket {
		p.errorf(p.tok.Pos, "expected '[' to open request, got %s", p.tok.Kind)
		return
	}
	p.next()

	for {
		if p.tok.Kind == TokRBracket {
			p.next()
			if p.tok.Kind != TokEOF {
				p.errorf(p.tok.Pos, "trailing input after request, got %s", p.tok.Kind)
			}
			return
		}
		if p.tok.Kind == TokEOF {
			p.errorf(p.tok.Pos, "unexpected end of input, expected ']'")
			return
		}

		p.parseItem()

		switch p.tok.Kind {
		case TokComma:
			p.next()
		case TokRBracket, TokEOF:
			// Closed or truncated; handled at the top of the loop.
		default:
			p.errorf(p.tok.Pos, "expected ',' or ']', got %s", p.tok.Kind)
			p.recover()
		}
	}
}

// parseItem parses one attribute, node, or call declaration.
func (p *parser) parseItem() {
	switch p.tok.Kind {
	case TokDot:
		p.parseNode()
	case TokArrow:
		p.parseEdge()
	case TokIdent:
		key := p.tok.Text
		p.next()
		if p.tok.Kind != TokEquals {
			p.errorf(p.tok.Pos, "expected '=' after attribute %q, got %s", key, p.tok.Kind)
			p.recover()
			return
		}
		p.next()
		value, _, ok := p.parseValue(key)
		if !ok {
			return
		}
		p.m.TopAttrs[key] = value
	case TokRBracket:
		// Tolerated trailing comma; the enclosing loop closes the request.
	default:
		p.errorf(p.tok.Pos, "expected attribute, node, or call declaration, got %s", p.tok.Kind)
		p.recover()
	}
}

// parseValue parses an attribute value (string, integer, or identifier) and
// returns the canonical value (quotes stripped) and the raw source text.
func (p *parser) parseValue(key string) (canonical, raw string, ok bool) {
	switch p.tok.Kind {
	case TokString:
		canonical, raw = Unquote(p.tok.Text), p.tok.Text
	case TokInt, TokIdent:
		canonical, raw = p.tok.Text, p.tok.Text
	default:
		p.errorf(p.tok.Pos, "expected value for attribute %q, got %s", key, p.tok.Kind)
		p.recover()
		return "", "", false
	}
	p.next()
	return canonical, raw, true
}

// parseNode parses '.' ident '[' attribute (',' attribute)* ','? ']'.
func (p *parser) parseNode() {
	p.next() // consume '.'
	if p.tok.Kind != TokIdent {
		p.errorf(p.tok.Pos, "expected node name after '.', got %s", p.tok.Kind)
		p.recover()
		return
	}
	name := p.tok.Text
	p.next()
	if p.tok.Kind != TokLBracket {
		p.errorf(p.tok.Pos, "expected '[' after node %q, got %s", name, p.tok.Kind)
		p.recover()
		return
	}
	p.next()

	attrs := make(map[string]string)
	var rawAttrs []rawAttr
	for {
		if p.tok.Kind == TokRBracket {
			p.next()
			break
		}
		if p.tok.Kind == TokEOF {
			p.errorf(p.tok.Pos, "unexpected end of input in node %q", name)
			break
		}
		if p.tok.Kind != TokIdent {
			p.errorf(p.tok.Pos, "expected attribute name in node %q, got %s", name, p.tok.Kind)
			p.recover()
		} else {
			key := p.tok.Text
			p.next()
			if p.tok.Kind != TokEquals {
				p.errorf(p.tok.Pos, "expected '=' after attribute %q in node %q, got %s", key, name, p.tok.Kind)
				p.recover()
			} else {
				p.next()
				if value, raw, ok := p.parseValue(key); ok {
					if _, dup := attrs[key]; !dup {
						rawAttrs = append(rawAttrs, rawAttr{key: key, value: raw})
					} else {
						for i := range rawAttrs {
							if rawAttrs[i].key == key {
								rawAttrs[i].value = raw
							}
						}
					}
					attrs[key] = value
				}
			}
		}

		switch p.tok.Kind {
		case TokComma:
			p.next()
		case TokRBracket, TokEOF:
			// Handled at the top of the loop.
		default:
			p.errorf(p.tok.Pos, "expected ',' or ']' in node %q, got %s", name, p.tok.Kind)
			p.recover()
		}
	}

	p.m.handleNode(name, attrs, rawAttrs)
}

// parseEdge parses '->' ident edge_qual* '[' BLOB ']'. The payload is
// captured verbatim by the scanner's blob mode so it can be forwarded to
// the destination peer unparsed.
func (p *parser) parseEdge() {
	p.next() // consume '->'
	if p.tok.Kind != TokIdent {
		p.errorf(p.tok.Pos, "expected destination name after '->', got %s", p.tok.Kind)
		p.recover()
		return
	}
	dest := p.tok.Text
	p.next()

	repeat, sequence := 1, 1
	for p.tok.Kind == TokIdent {
		qual := p.tok.Text
		qualPos := p.tok.Pos
		p.next()
		if p.tok.Kind != TokEquals {
			p.errorf(p.tok.Pos, "expected '=' after call qualifier %q, got %s", qual, p.tok.Kind)
			p.recover()
			return
		}
		p.next()
		if p.tok.Kind != TokInt {
			p.errorf(p.tok.Pos, "expected integer value for call qualifier %q, got %s", qual, p.tok.Kind)
			p.recover()
			return
		}
		n, err := strconv.Atoi(p.tok.Text)
		if err != nil {
			p.errorf(p.tok.Pos, "call qualifier %q value out of range", qual)
			n = 1
		}
		switch qual {
		case "repeat":
			repeat = n
		case "sequence":
			sequence = n
		default:
			p.errorf(qualPos, "unknown call qualifier %q, expected repeat or sequence", qual)
		}
		p.next()
	}

	if p.tok.Kind != TokLBracket {
		p.errorf(p.tok.Pos, "expected '[' to open payload for call to %q, got %s", dest, p.tok.Kind)
		p.recover()
		return
	}
	// The lookahead is exactly one token deep, so the scanner sits just
	// past the opening bracket; capture from there.
	blob, err := p.sc.ScanBlob()
	if err != nil {
		p.m.addError(err.Error())
		p.next()
		return
	}
	p.next()

	p.m.handleEdge(dest, repeat, sequence, "["+blob+"]")
}
