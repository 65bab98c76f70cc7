package fonts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Top DICT operators used here. Two-byte operators are 1200 + second byte.
const (
	opCharStrings = 17
	opROS         = 1230
)

var errTruncated = errors.New("cff: truncated data")

// CFF is the part of a Compact Font Format program preflight looks at.
type CFF struct {
	Major    uint8
	Minor    uint8
	Names    []string
	TopDicts []map[int][]Operand
	// Glyphs is the number of charstrings of the first font.
	Glyphs int
}

type Operand struct {
	Int   int
	Float float64
	IsInt bool
}

// CIDKeyed reports whether the first font carries a ROS operator.
func (c *CFF) CIDKeyed() bool {
	if len(c.TopDicts) == 0 {
		return false
	}
	_, ok := c.TopDicts[0][opROS]
	return ok
}

// ParseCFF reads the header, Name and Top DICT indexes and the charstring
// count of data.
func ParseCFF(data []byte) (*CFF, error) {
	if len(data) < 4 {
		return nil, errTruncated
	}
	c := &CFF{Major: data[0], Minor: data[1]}
	if c.Major != 1 {
		return nil, fmt.Errorf("cff: unsupported major version %d", c.Major)
	}
	hdrSize := int(data[2])
	if hdrSize < 4 || hdrSize > len(data) {
		return nil, fmt.Errorf("cff: bad header size %d", hdrSize)
	}

	names, next, err := readIndex(data, hdrSize)
	if err != nil {
		return nil, fmt.Errorf("read name index: %w", err)
	}
	for _, n := range names {
		c.Names = append(c.Names, string(n))
	}
	if len(c.Names) == 0 {
		return nil, errors.New("cff: empty name index")
	}

	dicts, _, err := readIndex(data, next)
	if err != nil {
		return nil, fmt.Errorf("read top dict index: %w", err)
	}
	for i, d := range dicts {
		parsed, err := parseDict(d)
		if err != nil {
			return nil, fmt.Errorf("parse top dict %d: %w", i, err)
		}
		c.TopDicts = append(c.TopDicts, parsed)
	}
	if len(c.TopDicts) == 0 {
		return nil, errors.New("cff: no top dict")
	}

	if ops := c.TopDicts[0][opCharStrings]; len(ops) == 1 && ops[0].IsInt {
		n, err := indexCount(data, ops[0].Int)
		if err != nil {
			return nil, fmt.Errorf("read charstrings: %w", err)
		}
		c.Glyphs = n
	}
	return c, nil
}

func inspectCFF(data []byte) (*Program, error) {
	c, err := ParseCFF(data)
	if err != nil {
		return nil, err
	}
	p := &Program{Format: FormatCFF, Name: c.Names[0], Glyphs: c.Glyphs}
	if c.CIDKeyed() {
		p.Format = FormatCIDCFF
	}
	return p, nil
}

func indexCount(data []byte, off int) (int, error) {
	if off < 0 || off+2 > len(data) {
		return 0, errTruncated
	}
	return int(binary.BigEndian.Uint16(data[off:])), nil
}

// readIndex returns the items of the INDEX at off and the offset just past it.
func readIndex(data []byte, off int) ([][]byte, int, error) {
	count, err := indexCount(data, off)
	if err != nil {
		return nil, 0, err
	}
	off += 2
	if count == 0 {
		return nil, off, nil
	}
	if off >= len(data) {
		return nil, 0, errTruncated
	}
	offSize := int(data[off])
	off++
	if offSize < 1 || offSize > 4 {
		return nil, 0, fmt.Errorf("cff: bad offset size %d", offSize)
	}
	if off+(count+1)*offSize > len(data) {
		return nil, 0, errTruncated
	}
	offsets := make([]int, count+1)
	for i := range offsets {
		v := 0
		for _, b := range data[off : off+offSize] {
			v = v<<8 | int(b)
		}
		offsets[i] = v
		off += offSize
	}
	base := off - 1 // offsets are 1-based
	end := base + offsets[count]
	if end > len(data) {
		return nil, 0, errTruncated
	}
	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		s, e := base+offsets[i], base+offsets[i+1]
		if offsets[i] < 1 || s > e {
			return nil, 0, errors.New("cff: invalid index offsets")
		}
		items[i] = data[s:e]
	}
	return items, end, nil
}

func parseDict(data []byte) (map[int][]Operand, error) {
	dict := make(map[int][]Operand)
	var operands []Operand
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b <= 21:
			op := int(b)
			i++
			if b == 12 {
				if i >= len(data) {
					return nil, errTruncated
				}
				op = 1200 + int(data[i])
				i++
			}
			dict[op] = operands
			operands = nil
		case b == 30:
			v, n, err := readReal(data[i+1:])
			if err != nil {
				return nil, err
			}
			operands = append(operands, Operand{Float: v})
			i += 1 + n
		case b == 28 || b == 29 || b >= 32 && b <= 254:
			v, n, err := readInteger(data[i:])
			if err != nil {
				return nil, err
			}
			operands = append(operands, Operand{Int: v, IsInt: true})
			i += n
		default:
			i++ // reserved
		}
	}
	return dict, nil
}

// readReal decodes a nibble-encoded real and returns the bytes consumed.
func readReal(data []byte) (float64, int, error) {
	var sb strings.Builder
	for i, b := range data {
		for _, n := range [2]byte{b >> 4, b & 0x0f} {
			switch {
			case n <= 9:
				sb.WriteByte('0' + n)
			case n == 0xa:
				sb.WriteByte('.')
			case n == 0xb:
				sb.WriteString("E")
			case n == 0xc:
				sb.WriteString("E-")
			case n == 0xe:
				sb.WriteByte('-')
			case n == 0xf:
				v, err := strconv.ParseFloat(sb.String(), 64)
				return v, i + 1, err
			}
		}
	}
	return 0, 0, errTruncated
}

// readInteger decodes an integer operand and returns the bytes consumed.
func readInteger(data []byte) (int, int, error) {
	b0 := int(data[0])
	need := func(n int) error {
		if len(data) < n {
			return errTruncated
		}
		return nil
	}
	switch {
	case b0 >= 32 && b0 <= 246:
		return b0 - 139, 1, nil
	case b0 >= 247 && b0 <= 250:
		if err := need(2); err != nil {
			return 0, 0, err
		}
		return (b0-247)*256 + int(data[1]) + 108, 2, nil
	case b0 >= 251 && b0 <= 254:
		if err := need(2); err != nil {
			return 0, 0, err
		}
		return -(b0-251)*256 - int(data[1]) - 108, 2, nil
	case b0 == 28:
		if err := need(3); err != nil {
			return 0, 0, err
		}
		return int(int16(binary.BigEndian.Uint16(data[1:]))), 3, nil
	case b0 == 29:
		if err := need(5); err != nil {
			return 0, 0, err
		}
		return int(int32(binary.BigEndian.Uint32(data[1:]))), 5, nil
	}
	return 0, 0, fmt.Errorf("cff: invalid integer prefix %d", b0)
}
