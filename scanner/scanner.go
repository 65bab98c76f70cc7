package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/preflight/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenInlineImage                  // inline image data following ID ... EI
	TokenKeyword                      // operators and '>>', ']'
)

type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // strings and inline image data
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Pos   int64
}

// Scanner tokenizes a decoded content stream.
type Scanner interface {
	Next() (Token, error)
	Position() int64
}

type Config struct {
	MaxNameLength   int
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxInlineImage  int64
	Recovery        recovery.Strategy
	// Location is attached to every recovery callback.
	Location recovery.Location
}

type contentScanner struct {
	data       []byte
	pos        int64
	cfg        Config
	arrayDepth int
	dictDepth  int
	lastAction recovery.Action
}

// New returns a scanner over data. The slice is not copied.
func New(data []byte, cfg Config) Scanner {
	return &contentScanner{data: data, cfg: cfg}
}

func (s *contentScanner) Position() int64 { return s.pos }

func (s *contentScanner) Next() (Token, error) {
	for {
		tok, err := s.next()
		if errors.Is(err, errDrop) {
			continue
		}
		return tok, err
	}
}

// errDrop marks a token discarded by recovery.
var errDrop = errors.New("token dropped")

func (s *contentScanner) next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		if s.arrayDepth > 0 {
			if err := s.recover(errors.New("unclosed array at end of stream"), "array"); err == nil && s.lastAction == recovery.ActionFix {
				s.arrayDepth--
				return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
			}
		}
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	}
	if isDigitStart(c) {
		if tok, ok := s.scanNumber(); ok {
			return tok, nil
		}
	}
	return s.scanKeyword()
}

func (s *contentScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *contentScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *contentScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	checked := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' {
			s.pos++
			a := s.hexNibble()
			b := s.hexNibble()
			out.WriteByte((a << 4) | b)
			continue
		}
		out.WriteByte(c)
		s.pos++
		if !checked && s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			if err := s.recover(errors.New("name too long"), "name"); err != nil {
				return Token{}, err
			}
			checked = true
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *contentScanner) hexNibble() byte {
	if s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *contentScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	checked := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			// backslash-EOL is a line continuation
			if esc == '\r' {
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		buf.WriteByte(c)
		s.pos++
		if !checked && s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			if err := s.recover(errors.New("literal string too long"), "literal"); err != nil {
				return Token{}, err
			}
			checked = true
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
		if s.lastAction != recovery.ActionFix {
			return Token{}, errDrop
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *contentScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
		if s.lastAction != recovery.ActionFix {
			return Token{}, errDrop
		}
	}
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		if err := s.recover(errors.New("hex string too long"), "hex"); err != nil {
			return Token{}, err
		}
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// scanNumber reads an integer or real. It leaves the position unchanged and
// reports false when no digit is present.
func (s *contentScanner) scanNumber() (Token, bool) {
	start := s.pos
	end := s.pos
	seenDigit := false
	for end < int64(len(s.data)) {
		c := s.data[end]
		if !isDigitStart(c) {
			break
		}
		if c >= '0' && c <= '9' {
			seenDigit = true
		}
		end++
	}
	if !seenDigit {
		return Token{}, false
	}
	text := string(s.data[start:end])
	s.pos = end
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// producers emit forms like "1.-5" or "--3"; keep the leading sign and digits
		f = lenientFloat(text)
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, true
}

func lenientFloat(text string) float64 {
	neg := false
	i := 0
	for i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = neg != (text[i] == '-')
		i++
	}
	j := i
	dot := false
	for j < len(text) && ((text[j] >= '0' && text[j] <= '9') || (text[j] == '.' && !dot)) {
		dot = dot || text[j] == '.'
		j++
	}
	f, _ := strconv.ParseFloat(text[i:j], 64)
	if neg {
		return -f
	}
	return f
}

func (s *contentScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// a lone delimiter we do not otherwise handle, such as ')'
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "ID":
		return s.scanInlineImage(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

// scanInlineImage consumes the bytes after ID up to an EI keyword preceded by
// whitespace and followed by a delimiter or the end of the stream.
func (s *contentScanner) scanInlineImage(start int64) (Token, error) {
	if s.pos >= int64(len(s.data)) || !isWhitespace(s.data[s.pos]) {
		if err := s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image"); err != nil {
			return Token{}, err
		}
	} else {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	checked := false
	for i := dataStart; i+1 < int64(len(s.data)); i++ {
		if !checked && s.cfg.MaxInlineImage > 0 && i-dataStart > s.cfg.MaxInlineImage {
			if err := s.recover(errors.New("inline image too long"), "inline_image"); err != nil {
				return Token{}, err
			}
			checked = true
		}
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		prevOK := i > dataStart && isWhitespace(s.data[i-1])
		nextOK := i+2 >= int64(len(s.data)) || isDelimiter(s.data[i+2])
		if prevOK && nextOK {
			payload := s.data[dataStart : i-1]
			if isEOL(s.data[i-1]) {
				payload = s.data[dataStart:i]
			}
			s.pos = i + 2
			return Token{Type: TokenInlineImage, Bytes: payload, Pos: start}, nil
		}
	}
	s.pos = int64(len(s.data))
	if err := s.recover(errors.New("unterminated inline image"), "inline_image"); err != nil {
		return Token{}, err
	}
	return Token{}, errDrop
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

// recover consults the configured strategy. A nil return means the caller
// may continue; s.lastAction tells it whether a repair was requested.
func (s *contentScanner) recover(err error, loc string) error {
	s.lastAction = recovery.ActionFail
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.cfg.Location
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(context.Background(), err, location)
	if s.lastAction.Continues() {
		return nil
	}
	return err
}

func (s *contentScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			if err := s.recover(errors.New("array depth exceeded"), "array"); err != nil {
				return Token{}, err
			}
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			if err := s.recover(errors.New("dict depth exceeded"), "dict"); err != nil {
				return Token{}, err
			}
		}
	case TokenKeyword:
		switch tok.Str {
		case "]":
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return Token{}, errDrop
			}
			s.arrayDepth--
		case ">>":
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return Token{}, errDrop
			}
			s.dictDepth--
		}
	}
	return tok, nil
}
