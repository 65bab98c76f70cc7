package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
	"github.com/wudi/preflight/scanner"
)

type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// Parse splits a decoded content stream into operations. Lexical errors the
// configured recovery strategy does not absorb are reported as
// ErrStreamCorruption. Operands left without an operator at the end of the
// stream are dropped.
func Parse(data []byte, cfg scanner.Config) ([]semantic.Operation, error) {
	tr := &tokenReader{s: scanner.New(data, cfg)}
	var ops []semantic.Operation
	var operands []raw.Object
	for {
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, fmt.Errorf("%w: %v", ErrStreamCorruption, err)
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "]", ">>", ">", "{", "}":
				return ops, fmt.Errorf("%w: unexpected %q at offset %d", ErrStreamCorruption, tok.Str, tok.Pos)
			case "BI":
				op, err := parseInlineImage(tr)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				operands = nil
				continue
			}
			ops = append(ops, semantic.Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		tr.unread(tok)
		obj, err := parseOperand(tr)
		if err != nil {
			return ops, err
		}
		operands = append(operands, obj)
	}
}

func parseOperand(tr *tokenReader) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, corruption(err)
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	}
	return nil, fmt.Errorf("%w: unexpected token %q at offset %d", ErrStreamCorruption, tok.Str, tok.Pos)
}

func corruption(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected end of stream", ErrStreamCorruption)
	}
	return fmt.Errorf("%w: %v", ErrStreamCorruption, err)
}

func parseArray(tr *tokenReader) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, corruption(err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseOperand(tr)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
	}
}

func parseDict(tr *tokenReader) (*raw.DictObj, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, corruption(err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: expected name in dictionary at offset %d", ErrStreamCorruption, tok.Pos)
		}
		val, err := parseOperand(tr)
		if err != nil {
			return nil, err
		}
		d.Set(tok.Str, val)
	}
}

// parseInlineImage reads BI <params> ID <data> EI as one operation with the
// parameter dictionary and the raw data as operands.
func parseInlineImage(tr *tokenReader) (semantic.Operation, error) {
	params := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return semantic.Operation{}, corruption(err)
		}
		if tok.Type == scanner.TokenInlineImage {
			return semantic.Operation{
				Operator: "BI",
				Operands: []raw.Object{params, raw.StringObj{Bytes: tok.Bytes}},
			}, nil
		}
		if tok.Type != scanner.TokenName {
			return semantic.Operation{}, fmt.Errorf("%w: expected inline image key at offset %d", ErrStreamCorruption, tok.Pos)
		}
		val, err := parseOperand(tr)
		if err != nil {
			return semantic.Operation{}, err
		}
		params.Set(tok.Str, val)
	}
}
