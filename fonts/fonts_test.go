package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/preflight/ir/semantic"
)

// cffIndex encodes items as a CFF INDEX with one-byte offsets.
func cffIndex(items ...[]byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(items)))
	if len(items) == 0 {
		return buf.Bytes()
	}
	buf.WriteByte(1)
	off := 1
	buf.WriteByte(byte(off))
	for _, it := range items {
		off += len(it)
		buf.WriteByte(byte(off))
	}
	for _, it := range items {
		buf.Write(it)
	}
	return buf.Bytes()
}

// buildCFF returns a CFF font named Test with three charstrings. extra is
// prepended to the Top DICT.
func buildCFF(extra []byte) []byte {
	header := []byte{1, 0, 4, 1}
	names := cffIndex([]byte("Test"))
	// the CharStrings operand is a 3-byte integer, so the dict size is known
	// before the offset is.
	dictLen := len(extra) + 4
	top := cffIndex(make([]byte, dictLen))
	strs := cffIndex()
	gsubrs := cffIndex()
	charStrings := len(header) + len(names) + len(top) + len(strs) + len(gsubrs)

	dict := append(append([]byte(nil), extra...), 28, byte(charStrings>>8), byte(charStrings), opCharStrings)
	top = cffIndex(dict)

	var buf bytes.Buffer
	for _, part := range [][]byte{header, names, top, strs, gsubrs} {
		buf.Write(part)
	}
	buf.Write(cffIndex([]byte{14}, []byte{14}, []byte{14}))
	return buf.Bytes()
}

func TestParseCFF(t *testing.T) {
	c, err := ParseCFF(buildCFF(nil))
	if err != nil {
		t.Fatalf("ParseCFF failed: %v", err)
	}
	if len(c.Names) != 1 || c.Names[0] != "Test" {
		t.Errorf("expected name Test, got %v", c.Names)
	}
	if c.Glyphs != 3 {
		t.Errorf("expected 3 glyphs, got %d", c.Glyphs)
	}
	if c.CIDKeyed() {
		t.Errorf("plain font reported as CID-keyed")
	}

	// three SID operands followed by the ROS operator
	cid, err := ParseCFF(buildCFF([]byte{139, 139, 139, 12, 30}))
	if err != nil {
		t.Fatalf("ParseCFF failed: %v", err)
	}
	if !cid.CIDKeyed() || cid.Glyphs != 3 {
		t.Errorf("expected CID-keyed font with 3 glyphs, got %v / %d", cid.CIDKeyed(), cid.Glyphs)
	}
}

func TestParseCFFRejectsDamage(t *testing.T) {
	good := buildCFF(nil)
	cases := map[string][]byte{
		"empty":     nil,
		"version":   append([]byte{2}, good[1:]...),
		"truncated": good[:12],
	}
	for name, data := range cases {
		if _, err := ParseCFF(data); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestReadOperands(t *testing.T) {
	d, err := parseDict([]byte{247, 0, 28, 0xff, 0xfe, 30, 0x1a, 0x5f, 5})
	if err != nil {
		t.Fatalf("parseDict failed: %v", err)
	}
	ops := d[5]
	if len(ops) != 3 {
		t.Fatalf("expected 3 operands, got %v", ops)
	}
	if ops[0].Int != 108 || ops[1].Int != -2 || ops[2].Float != 1.5 {
		t.Errorf("unexpected operands %v", ops)
	}
}

const type1Clear = "%!PS-AdobeFont-1.0: TestFont 1.0\n/FontName /TestFont def\ncurrentfile eexec\n"

func TestInspectType1(t *testing.T) {
	p, err := Inspect(&semantic.FontDescriptor{FontFileKey: "FontFile", FontFile: []byte(type1Clear + "\xde\xad")})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if p.Format != FormatType1 || p.Name != "TestFont" {
		t.Errorf("unexpected program %+v", p)
	}

	var pfb bytes.Buffer
	pfb.Write([]byte{0x80, 1})
	binary.Write(&pfb, binary.LittleEndian, uint32(len(type1Clear)))
	pfb.WriteString(type1Clear)
	pfb.Write([]byte{0x80, 2, 2, 0, 0, 0, 0xde, 0xad, 0x80, 3})
	p, err = Inspect(&semantic.FontDescriptor{FontFileKey: "FontFile", FontFile: pfb.Bytes()})
	if err != nil || p.Name != "TestFont" {
		t.Fatalf("pfb: got %+v, %v", p, err)
	}
}

func TestInspectTrueType(t *testing.T) {
	p, err := Inspect(&semantic.FontDescriptor{FontFileKey: "FontFile2", FontFile: goregular.TTF})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if p.Format != FormatTrueType || p.Glyphs == 0 || p.Name == "" {
		t.Errorf("unexpected program %+v", p)
	}

	p, err = Inspect(&semantic.FontDescriptor{FontFileKey: "FontFile3", FontFileSubtype: "OpenType", FontFile: goregular.TTF})
	if err != nil {
		t.Fatalf("Inspect OpenType failed: %v", err)
	}
	if p.Format != FormatOpenType || p.Glyphs == 0 {
		t.Errorf("unexpected program %+v", p)
	}
}

func TestInspectCFF(t *testing.T) {
	p, err := Inspect(&semantic.FontDescriptor{FontFileKey: "FontFile3", FontFileSubtype: "Type1C", FontFile: buildCFF(nil)})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if p.Format != FormatCFF || p.Name != "Test" || p.Glyphs != 3 {
		t.Errorf("unexpected program %+v", p)
	}
}

func TestInspectErrors(t *testing.T) {
	cases := []struct {
		name string
		desc *semantic.FontDescriptor
		want error
	}{
		{"nil", nil, ErrNotEmbedded},
		{"no file", &semantic.FontDescriptor{FontName: "Helvetica"}, ErrNotEmbedded},
		{"decode error", &semantic.FontDescriptor{FontFileKey: "FontFile2", FontFileErr: errors.New("flate")}, ErrUnreadable},
		{"empty", &semantic.FontDescriptor{FontFileKey: "FontFile2"}, ErrUnreadable},
		{"truncated truetype", &semantic.FontDescriptor{FontFileKey: "FontFile2", FontFile: goregular.TTF[:64]}, ErrUnreadable},
		{"not type1", &semantic.FontDescriptor{FontFileKey: "FontFile", FontFile: []byte("hello")}, ErrUnreadable},
		{"subtype", &semantic.FontDescriptor{FontFileKey: "FontFile3", FontFileSubtype: "Type3", FontFile: []byte{1}}, ErrUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Inspect(tc.desc); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
