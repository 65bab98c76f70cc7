package semantic

import (
	"github.com/wudi/preflight/coords"
	"github.com/wudi/preflight/ir/raw"
)

// Document is the typed view of a raw object graph that validation runs over.
type Document struct {
	Raw           *raw.Document
	Version       string // effective version: the later of header and catalog /Version
	Pages         []*Page
	Info          *DocumentInfo
	OutputIntents []OutputIntent
	Metadata      []byte // decoded XMP packet, nil when absent
	MetadataErr   error
	HasAcroForm   bool
	Encrypted     bool
	ID            [][]byte
	HasID         bool
}

// Resolve follows references in the underlying graph.
func (d *Document) Resolve(obj raw.Object) (raw.Object, error) {
	if d == nil || d.Raw == nil {
		return raw.Direct{}.Resolve(obj)
	}
	return d.Raw.Resolve(obj)
}

// Rectangle is a box in default user space, normalized so LL <= UR.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Contains reports whether the point lies inside r, edges included.
func (r Rectangle) Contains(x, y float64) bool {
	return x >= r.LLX && x <= r.URX && y >= r.LLY && y <= r.URY
}

// ContainsRect reports whether both corners of o lie inside r.
func (r Rectangle) ContainsRect(o Rectangle) bool {
	return r.Contains(o.LLX, o.LLY) && r.Contains(o.URX, o.URY)
}

// AnyCornerIn reports whether any corner of o lies inside r.
func (r Rectangle) AnyCornerIn(o Rectangle) bool {
	return r.Contains(o.LLX, o.LLY) || r.Contains(o.URX, o.LLY) ||
		r.Contains(o.URX, o.URY) || r.Contains(o.LLX, o.URY)
}

func (r Rectangle) normalize() Rectangle {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

// Box names as they appear in page dictionaries.
const (
	MediaBox = "MediaBox"
	CropBox  = "CropBox"
	BleedBox = "BleedBox"
	TrimBox  = "TrimBox"
	ArtBox   = "ArtBox"
)

type Page struct {
	Index    int
	Dict     *raw.DictObj
	MediaBox Rectangle
	CropBox  Rectangle
	BleedBox Rectangle
	TrimBox  Rectangle
	ArtBox   Rectangle
	// Declared records which boxes the page (or an ancestor, for inheritable
	// boxes) states explicitly.
	Declared  map[string]bool
	Rotate    int
	Resources *Resources
	// Operations, when set, is used instead of parsing Content.
	Operations  []Operation
	Content     []byte
	ContentErr  error
	Annotations []Annotation
	Group       *Group
}

// Box returns the named effective box.
func (p *Page) Box(name string) (Rectangle, bool) {
	switch name {
	case MediaBox:
		return p.MediaBox, true
	case CropBox:
		return p.CropBox, true
	case BleedBox:
		return p.BleedBox, true
	case TrimBox:
		return p.TrimBox, true
	case ArtBox:
		return p.ArtBox, true
	}
	return Rectangle{}, false
}

// Operation is one content-stream operator with its operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

type Resources struct {
	Dict        *raw.DictObj
	ColorSpaces map[string]raw.Object
	XObjects    map[string]*XObject
	Fonts       map[string]*Font
	ExtGStates  map[string]*ExtGState
	// Unresolved lists resource names whose objects could not be loaded.
	Unresolved []string
}

type XObjectKind int

const (
	XObjectUnknown XObjectKind = iota
	XObjectImage
	XObjectForm
	XObjectPostScript
)

func (k XObjectKind) String() string {
	switch k {
	case XObjectImage:
		return "Image"
	case XObjectForm:
		return "Form"
	case XObjectPostScript:
		return "PS"
	default:
		return "Unknown"
	}
}

// XObject is an external object. The builder creates one value per underlying
// object, so pointer equality means object identity.
type XObject struct {
	Kind  XObjectKind
	Key   any // raw.IdentityOf the resource value
	Dict  *raw.DictObj
	Image *Image
	Form  *Form
}

// IsTransparencyGroup reports whether the object is a form with a
// /Group << /S /Transparency >> dictionary.
func (x *XObject) IsTransparencyGroup() bool {
	return x != nil && x.Form != nil && x.Form.Group != nil && x.Form.Group.S == "Transparency"
}

type Image struct {
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       raw.Object // nil for stencil masks
	ImageMask        bool
	Decode           []float64
	HasDecode        bool
	// ColorKeyMask holds min/max pairs from a /Mask array.
	ColorKeyMask []int
	HasSMask     bool
	Data         []byte // still encoded
	Filters      []string
	DecodeParms  []*raw.DictObj
}

type Form struct {
	BBox       Rectangle
	Matrix     coords.Matrix
	Resources  *Resources // nil when the form inherits its caller's resources
	Operations []Operation
	Content    []byte
	ContentErr error
	Group      *Group
}

type Group struct {
	S    string
	CS   raw.Object
	Dict *raw.DictObj
}

type Font struct {
	BaseFont  string
	Subtype   string
	Composite bool // Type0
	// Descriptor is the font's (or its descendant's) descriptor.
	Descriptor *FontDescriptor
	Dict       *raw.DictObj
}

// Embedded reports whether a font program is present. Type3 fonts carry their
// glyphs in the font dictionary and count as embedded.
func (f *Font) Embedded() bool {
	if f.Subtype == "Type3" {
		return true
	}
	return f.Descriptor != nil && f.Descriptor.FontFileKey != ""
}

type FontDescriptor struct {
	FontName string
	// FontFileKey is FontFile, FontFile2 or FontFile3.
	FontFileKey     string
	FontFileSubtype string // /Subtype of a FontFile3 stream
	FontFile        []byte // decoded program
	FontFileErr     error
}

type ExtGState struct {
	Dict *raw.DictObj
}

type Annotation struct {
	Subtype string
	Rect    Rectangle
	Dict    *raw.DictObj
}

type OutputIntent struct {
	S                         string
	OutputConditionIdentifier string
	OutputCondition           string
	RegistryName              string
	Info                      string
	HasRegistryName           bool
	HasInfo                   bool
	HasDestOutputProfile      bool
	DestOutputProfile         []byte
	Dict                      *raw.DictObj
}

// InfoValue is one entry of the document information dictionary.
type InfoValue struct {
	Text string
	// Kind is "string", "name" or the raw type of anything else.
	Kind string
}

type DocumentInfo struct {
	Entries map[string]InfoValue
}

// Has reports whether key is present in the info dictionary.
func (i *DocumentInfo) Has(key string) bool {
	if i == nil {
		return false
	}
	_, ok := i.Entries[key]
	return ok
}

// Text returns the textual value of key. Only strings and names have one.
func (i *DocumentInfo) Text(key string) (string, bool) {
	if i == nil {
		return "", false
	}
	v, ok := i.Entries[key]
	if !ok || (v.Kind != "string" && v.Kind != "name") {
		return "", false
	}
	return v.Text, true
}
