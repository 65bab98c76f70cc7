package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/preflight/coords"
	"github.com/wudi/preflight/filters"
	"github.com/wudi/preflight/ir/raw"
)

var (
	ErrNoCatalog  = errors.New("semantic: document has no catalog")
	ErrNoPageTree = errors.New("semantic: catalog has no page tree")
)

const maxPageTreeDepth = 64

// letter is used when no MediaBox is declared anywhere in the page tree.
var letter = Rectangle{0, 0, 612, 792}

type inheritedPageProps struct {
	MediaBox  *Rectangle
	CropBox   *Rectangle
	Rotate    *int
	Resources raw.Object
}

type builder struct {
	ctx       context.Context
	doc       *raw.Document
	pipeline  *filters.Pipeline
	xobjects  map[any]*XObject
	fonts     map[any]*Font
	resources map[any]*Resources
}

// Build types the raw object graph. Stream data is decoded through pipeline;
// a nil pipeline uses filters.Standard.
func Build(ctx context.Context, doc *raw.Document, pipeline *filters.Pipeline) (*Document, error) {
	if doc == nil {
		return nil, errors.New("semantic: nil raw document")
	}
	if pipeline == nil {
		pipeline = filters.Standard(filters.Limits{})
	}
	b := &builder{
		ctx:       ctx,
		doc:       doc,
		pipeline:  pipeline,
		xobjects:  make(map[any]*XObject),
		fonts:     make(map[any]*Font),
		resources: make(map[any]*Resources),
	}

	cat, err := doc.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCatalog, err)
	}
	out := &Document{Raw: doc, Version: doc.Version}
	if v, ok := raw.NameOf(doc, valueOf(cat, "Version")); ok && versionLess(out.Version, v) {
		out.Version = v
	}

	pagesObj, ok := cat.Get("Pages")
	if !ok {
		return nil, ErrNoPageTree
	}
	pages, err := b.pages(pagesObj, inheritedPageProps{}, 0, make(map[any]bool))
	if err != nil {
		return nil, err
	}
	for i, p := range pages {
		p.Index = i
	}
	out.Pages = pages

	out.Info = b.info()
	out.OutputIntents = b.outputIntents(cat)
	if m, ok := raw.StreamOf(doc, valueOf(cat, "Metadata")); ok {
		out.Metadata, out.MetadataErr = b.decode(m)
	}
	out.HasAcroForm = cat.Has("AcroForm")
	if doc.Trailer != nil {
		out.Encrypted = doc.Trailer.Has("Encrypt")
		if idObj, ok := doc.Trailer.Get("ID"); ok {
			out.HasID = true
			if arr, ok := raw.ArrayOf(doc, idObj); ok {
				for _, it := range arr.Items {
					if s, ok := it.(raw.StringObj); ok {
						out.ID = append(out.ID, s.Bytes)
					}
				}
			}
		}
	}
	return out, nil
}

func valueOf(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

func versionLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errB != nil {
		return false
	}
	return errA != nil || fa < fb
}

// pages traverses the page tree and returns a flat list of pages.
func (b *builder) pages(obj raw.Object, inherited inheritedPageProps, depth int, seen map[any]bool) ([]*Page, error) {
	if depth > maxPageTreeDepth {
		return nil, errors.New("semantic: page tree too deep")
	}
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}
	if key := raw.IdentityOf(obj); key != nil {
		if seen[key] {
			return nil, nil
		}
		seen[key] = true
	}
	dict, ok := raw.DictOf(b.doc, obj)
	if !ok {
		return nil, fmt.Errorf("semantic: page tree node is not a dictionary")
	}

	next := inherited
	if r, ok := b.rect(valueOf(dict, MediaBox)); ok {
		next.MediaBox = &r
	}
	if r, ok := b.rect(valueOf(dict, CropBox)); ok {
		next.CropBox = &r
	}
	if rot, ok := raw.IntOf(b.doc, valueOf(dict, "Rotate")); ok {
		next.Rotate = &rot
	}
	if res, ok := dict.Get("Resources"); ok {
		next.Resources = res
	}

	typ, hasType := raw.NameOf(b.doc, valueOf(dict, "Type"))
	isPage := typ == "Page" || (!hasType && !dict.Has("Kids"))
	if isPage {
		return []*Page{b.page(dict, next)}, nil
	}

	kids, ok := raw.ArrayOf(b.doc, valueOf(dict, "Kids"))
	if !ok {
		return nil, fmt.Errorf("semantic: pages node missing Kids")
	}
	var out []*Page
	for _, kid := range kids.Items {
		sub, err := b.pages(kid, next, depth+1, seen)
		if err != nil {
			if ctxErr := b.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (b *builder) page(dict *raw.DictObj, inh inheritedPageProps) *Page {
	p := &Page{Dict: dict, Declared: make(map[string]bool)}

	p.MediaBox = letter
	if inh.MediaBox != nil {
		p.MediaBox = *inh.MediaBox
		p.Declared[MediaBox] = true
	}
	p.CropBox = p.MediaBox
	if inh.CropBox != nil {
		p.CropBox = *inh.CropBox
		p.Declared[CropBox] = true
	}
	for _, name := range []string{BleedBox, TrimBox, ArtBox} {
		r, ok := b.rect(valueOf(dict, name))
		if !ok {
			r = p.CropBox
		} else {
			p.Declared[name] = true
		}
		switch name {
		case BleedBox:
			p.BleedBox = r
		case TrimBox:
			p.TrimBox = r
		case ArtBox:
			p.ArtBox = r
		}
	}
	if inh.Rotate != nil {
		p.Rotate = *inh.Rotate
	}

	p.Resources = b.resourcesOf(inh.Resources)
	if c, ok := dict.Get("Contents"); ok {
		p.Content, p.ContentErr = b.content(c)
	}
	p.Annotations = b.annotations(valueOf(dict, "Annots"))
	p.Group = b.group(valueOf(dict, "Group"))
	return p
}

func (b *builder) rect(obj raw.Object) (Rectangle, bool) {
	nums, ok := raw.Numbers(b.doc, obj)
	if !ok || len(nums) != 4 {
		return Rectangle{}, false
	}
	return Rectangle{nums[0], nums[1], nums[2], nums[3]}.normalize(), true
}

func (b *builder) decode(s *raw.StreamObj) ([]byte, error) {
	names, params := filters.ExtractFilters(b.doc, s.Dict)
	return b.pipeline.Decode(b.ctx, s.Data, names, params)
}

// content decodes a content stream or an array of them, joined by newlines.
func (b *builder) content(obj raw.Object) ([]byte, error) {
	if s, ok := raw.StreamOf(b.doc, obj); ok {
		return b.decode(s)
	}
	arr, ok := raw.ArrayOf(b.doc, obj)
	if !ok {
		return nil, errors.New("semantic: /Contents is neither stream nor array")
	}
	var buf bytes.Buffer
	for _, it := range arr.Items {
		s, ok := raw.StreamOf(b.doc, it)
		if !ok {
			return buf.Bytes(), errors.New("semantic: /Contents element is not a stream")
		}
		data, err := b.decode(s)
		if err != nil {
			return buf.Bytes(), err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (b *builder) resourcesOf(obj raw.Object) *Resources {
	key := raw.IdentityOf(obj)
	if key != nil {
		if r, ok := b.resources[key]; ok {
			return r
		}
	}
	res := &Resources{
		ColorSpaces: make(map[string]raw.Object),
		XObjects:    make(map[string]*XObject),
		Fonts:       make(map[string]*Font),
		ExtGStates:  make(map[string]*ExtGState),
	}
	if key != nil {
		b.resources[key] = res
	}
	dict, ok := raw.DictOf(b.doc, obj)
	if !ok {
		return res
	}
	res.Dict = dict

	if cs, ok := raw.DictOf(b.doc, valueOf(dict, "ColorSpace")); ok {
		for name, v := range cs.KV {
			res.ColorSpaces[name] = v
		}
	}
	if xo, ok := raw.DictOf(b.doc, valueOf(dict, "XObject")); ok {
		for name, v := range xo.KV {
			x, err := b.xobject(v)
			if err != nil {
				res.Unresolved = append(res.Unresolved, name)
				continue
			}
			res.XObjects[name] = x
		}
	}
	if fonts, ok := raw.DictOf(b.doc, valueOf(dict, "Font")); ok {
		for name, v := range fonts.KV {
			f, ok := b.font(v)
			if !ok {
				res.Unresolved = append(res.Unresolved, name)
				continue
			}
			res.Fonts[name] = f
		}
	}
	if gs, ok := raw.DictOf(b.doc, valueOf(dict, "ExtGState")); ok {
		for name, v := range gs.KV {
			d, ok := raw.DictOf(b.doc, v)
			if !ok {
				res.Unresolved = append(res.Unresolved, name)
				continue
			}
			res.ExtGStates[name] = &ExtGState{Dict: d}
		}
	}
	sort.Strings(res.Unresolved)
	return res
}

func (b *builder) xobject(v raw.Object) (*XObject, error) {
	key := raw.IdentityOf(v)
	if x, ok := b.xobjects[key]; ok && key != nil {
		return x, nil
	}
	stream, ok := raw.StreamOf(b.doc, v)
	if !ok {
		return nil, errors.New("semantic: XObject is not a stream")
	}
	x := &XObject{Key: key, Dict: stream.Dict}
	if key != nil {
		b.xobjects[key] = x
	}

	subtype, _ := raw.NameOf(b.doc, valueOf(stream.Dict, "Subtype"))
	subtype2, _ := raw.NameOf(b.doc, valueOf(stream.Dict, "Subtype2"))
	switch {
	case subtype == "Image":
		x.Kind = XObjectImage
		x.Image = b.image(stream)
	case subtype == "PS" || subtype2 == "PS":
		x.Kind = XObjectPostScript
	case subtype == "Form":
		x.Kind = XObjectForm
		b.form(x, stream)
	}
	return x, nil
}

func (b *builder) image(s *raw.StreamObj) *Image {
	d := s.Dict
	img := &Image{Data: s.Data}
	img.Width, _ = raw.IntOf(b.doc, valueOf(d, "Width"))
	img.Height, _ = raw.IntOf(b.doc, valueOf(d, "Height"))
	if m, err := b.doc.Resolve(valueOf(d, "ImageMask")); err == nil {
		if bv, ok := m.(raw.BoolObj); ok {
			img.ImageMask = bv.V
		}
	}
	bpc, ok := raw.IntOf(b.doc, valueOf(d, "BitsPerComponent"))
	switch {
	case ok:
		img.BitsPerComponent = bpc
	case img.ImageMask:
		img.BitsPerComponent = 1
	default:
		img.BitsPerComponent = 8
	}
	if cs, ok := d.Get("ColorSpace"); ok {
		img.ColorSpace = cs
	} else if cs, ok := d.Get("CS"); ok {
		img.ColorSpace = cs
	}
	if dec, ok := raw.Numbers(b.doc, valueOf(d, "Decode")); ok {
		img.Decode, img.HasDecode = dec, true
	}
	if mask, ok := raw.Numbers(b.doc, valueOf(d, "Mask")); ok {
		for _, v := range mask {
			img.ColorKeyMask = append(img.ColorKeyMask, int(v))
		}
	}
	img.HasSMask = d.Has("SMask")
	img.Filters, img.DecodeParms = filters.ExtractFilters(b.doc, d)
	return img
}

func (b *builder) form(x *XObject, s *raw.StreamObj) {
	f := &Form{Matrix: coords.Identity()}
	x.Form = f
	if r, ok := b.rect(valueOf(s.Dict, "BBox")); ok {
		f.BBox = r
	}
	if m, ok := raw.Numbers(b.doc, valueOf(s.Dict, "Matrix")); ok && len(m) == 6 {
		f.Matrix = coords.Matrix{m[0], m[1], m[2], m[3], m[4], m[5]}
	}
	f.Group = b.group(valueOf(s.Dict, "Group"))
	if res, ok := s.Dict.Get("Resources"); ok {
		f.Resources = b.resourcesOf(res)
	}
	f.Content, f.ContentErr = b.decode(s)
}

func (b *builder) group(obj raw.Object) *Group {
	d, ok := raw.DictOf(b.doc, obj)
	if !ok {
		return nil
	}
	g := &Group{Dict: d}
	g.S, _ = raw.NameOf(b.doc, valueOf(d, "S"))
	g.CS, _ = d.Get("CS")
	return g
}

func (b *builder) font(v raw.Object) (*Font, bool) {
	key := raw.IdentityOf(v)
	if f, ok := b.fonts[key]; ok && key != nil {
		return f, true
	}
	dict, ok := raw.DictOf(b.doc, v)
	if !ok {
		return nil, false
	}
	f := &Font{Dict: dict}
	f.Subtype, _ = raw.NameOf(b.doc, valueOf(dict, "Subtype"))
	f.BaseFont, _ = raw.NameOf(b.doc, valueOf(dict, "BaseFont"))
	descDict := dict
	if f.Subtype == "Type0" {
		f.Composite = true
		descDict = nil
		if arr, ok := raw.ArrayOf(b.doc, valueOf(dict, "DescendantFonts")); ok && len(arr.Items) > 0 {
			descDict, _ = raw.DictOf(b.doc, arr.Items[0])
		}
	}
	if descDict != nil {
		if fd, ok := raw.DictOf(b.doc, valueOf(descDict, "FontDescriptor")); ok {
			f.Descriptor = b.descriptor(fd)
		}
	}
	if key != nil {
		b.fonts[key] = f
	}
	return f, true
}

func (b *builder) descriptor(fd *raw.DictObj) *FontDescriptor {
	desc := &FontDescriptor{}
	desc.FontName, _ = raw.NameOf(b.doc, valueOf(fd, "FontName"))
	for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
		s, ok := raw.StreamOf(b.doc, valueOf(fd, key))
		if !ok {
			continue
		}
		desc.FontFileKey = key
		desc.FontFileSubtype, _ = raw.NameOf(b.doc, valueOf(s.Dict, "Subtype"))
		desc.FontFile, desc.FontFileErr = b.decode(s)
		break
	}
	return desc
}

func (b *builder) annotations(obj raw.Object) []Annotation {
	arr, ok := raw.ArrayOf(b.doc, obj)
	if !ok {
		return nil
	}
	var out []Annotation
	for _, it := range arr.Items {
		d, ok := raw.DictOf(b.doc, it)
		if !ok {
			continue
		}
		a := Annotation{Dict: d}
		a.Subtype, _ = raw.NameOf(b.doc, valueOf(d, "Subtype"))
		a.Rect, _ = b.rect(valueOf(d, "Rect"))
		out = append(out, a)
	}
	return out
}

func (b *builder) info() *DocumentInfo {
	if b.doc.Trailer == nil {
		return nil
	}
	d, ok := raw.DictOf(b.doc, valueOf(b.doc.Trailer, "Info"))
	if !ok {
		return nil
	}
	info := &DocumentInfo{Entries: make(map[string]InfoValue, len(d.KV))}
	for key, v := range d.KV {
		o, err := b.doc.Resolve(v)
		if err != nil {
			continue
		}
		switch val := o.(type) {
		case raw.StringObj:
			info.Entries[key] = InfoValue{Text: DecodeText(val.Bytes), Kind: "string"}
		case raw.NameObj:
			info.Entries[key] = InfoValue{Text: val.Val, Kind: "name"}
		case raw.NullObj:
		default:
			info.Entries[key] = InfoValue{Kind: o.Type()}
		}
	}
	return info
}

func (b *builder) text(d *raw.DictObj, key string) (string, bool) {
	o, err := b.doc.Resolve(valueOf(d, key))
	if err != nil || o == nil {
		return "", false
	}
	switch v := o.(type) {
	case raw.StringObj:
		return DecodeText(v.Bytes), true
	case raw.NameObj:
		return v.Val, true
	}
	return "", false
}

func (b *builder) outputIntents(cat *raw.DictObj) []OutputIntent {
	arr, ok := raw.ArrayOf(b.doc, valueOf(cat, "OutputIntents"))
	if !ok {
		return nil
	}
	var out []OutputIntent
	for _, it := range arr.Items {
		d, ok := raw.DictOf(b.doc, it)
		if !ok {
			continue
		}
		oi := OutputIntent{Dict: d}
		oi.S, _ = raw.NameOf(b.doc, valueOf(d, "S"))
		oi.OutputConditionIdentifier, _ = b.text(d, "OutputConditionIdentifier")
		oi.OutputCondition, _ = b.text(d, "OutputCondition")
		oi.RegistryName, oi.HasRegistryName = b.text(d, "RegistryName")
		oi.Info, oi.HasInfo = b.text(d, "Info")
		if d.Has("DestOutputProfile") {
			oi.HasDestOutputProfile = true
			if s, ok := raw.StreamOf(b.doc, valueOf(d, "DestOutputProfile")); ok {
				oi.DestOutputProfile, _ = b.decode(s)
			}
		}
		out = append(out, oi)
	}
	return out
}
