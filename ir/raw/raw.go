package raw

import (
	"errors"
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

var (
	// ErrDangling is returned when a reference points at no object.
	ErrDangling = errors.New("raw: dangling reference")
	// ErrReferenceChain is returned when references point at references too deeply.
	ErrReferenceChain = errors.New("raw: reference chain too deep")
)

// maxRefChain bounds ref -> ref -> ref chains.
const maxRefChain = 32

// Resolver follows indirect references to their direct objects.
type Resolver interface {
	Resolve(obj Object) (Object, error)
}

// Document is the raw object graph handed over by a container parser.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // header version, e.g. "1.3"
}

// Lookup returns the object stored under ref.
func (d *Document) Lookup(ref ObjectRef) (Object, bool) {
	if d == nil || d.Objects == nil {
		return nil, false
	}
	o, ok := d.Objects[ref]
	return o, ok
}

// Resolve dereferences obj until a direct object is reached. Direct objects are
// returned unchanged.
func (d *Document) Resolve(obj Object) (Object, error) {
	for i := 0; i < maxRefChain; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj, nil
		}
		target, found := d.Lookup(ref.R)
		if !found || target == nil {
			return nil, fmt.Errorf("%w: %s", ErrDangling, ref.R)
		}
		obj = target
	}
	return nil, ErrReferenceChain
}

// Catalog resolves the trailer /Root entry.
func (d *Document) Catalog() (*DictObj, error) {
	if d == nil || d.Trailer == nil {
		return nil, errors.New("raw: document has no trailer")
	}
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, errors.New("raw: trailer has no /Root")
	}
	cat, ok := DictOf(d, root)
	if !ok {
		return nil, errors.New("raw: /Root is not a dictionary")
	}
	return cat, nil
}

type nameKey string

// IdentityOf returns a comparable key naming the underlying object: the
// reference for indirect objects, the pointer for direct containers and the
// name itself for names. Objects without identity return nil.
func IdentityOf(obj Object) any {
	switch o := obj.(type) {
	case RefObj:
		return o.R
	case *ArrayObj:
		return o
	case *DictObj:
		return o
	case *StreamObj:
		return o
	case NameObj:
		return nameKey(o.Val)
	}
	return nil
}

// DictOf resolves obj and returns it as a dictionary. A stream yields its
// dictionary.
func DictOf(r Resolver, obj Object) (*DictObj, bool) {
	if obj == nil {
		return nil, false
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return nil, false
	}
	switch v := o.(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

// ArrayOf resolves obj and returns it as an array.
func ArrayOf(r Resolver, obj Object) (*ArrayObj, bool) {
	if obj == nil {
		return nil, false
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return nil, false
	}
	a, ok := o.(*ArrayObj)
	return a, ok
}

// StreamOf resolves obj and returns it as a stream.
func StreamOf(r Resolver, obj Object) (*StreamObj, bool) {
	if obj == nil {
		return nil, false
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return nil, false
	}
	s, ok := o.(*StreamObj)
	return s, ok
}

// NameOf resolves obj and returns the name value.
func NameOf(r Resolver, obj Object) (string, bool) {
	if obj == nil {
		return "", false
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return "", false
	}
	n, ok := o.(NameObj)
	return n.Val, ok
}

// NumberOf resolves obj and returns it as a float.
func NumberOf(r Resolver, obj Object) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return 0, false
	}
	n, ok := o.(NumberObj)
	return n.Float(), ok
}

// IntOf resolves obj and returns it as an int.
func IntOf(r Resolver, obj Object) (int, bool) {
	f, ok := NumberOf(r, obj)
	return int(f), ok
}

// Numbers resolves every element of an array to a float. Non-numeric elements
// fail the conversion.
func Numbers(r Resolver, obj Object) ([]float64, bool) {
	arr, ok := ArrayOf(r, obj)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		f, ok := NumberOf(r, it)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// Direct is a Resolver for object graphs without indirect objects.
type Direct struct{}

func (Direct) Resolve(obj Object) (Object, error) {
	if ref, ok := obj.(RefObj); ok {
		return nil, fmt.Errorf("%w: %s", ErrDangling, ref.R)
	}
	return obj, nil
}
